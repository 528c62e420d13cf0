package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lexvault/internal/platform/logger"
	"lexvault/internal/platform/middleware"
	"lexvault/internal/platform/token"
	"lexvault/pkg/testutil"
)

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User-ID", middleware.GetUserID(r.Context()))
		w.Header().Set("X-Role", middleware.GetRole(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	tokens := token.NewService("signing-key")
	protected := middleware.RequireAuth(tokens, logger.New())(identityEcho())

	t.Run("missing header rejected", func(t *testing.T) {
		rr := testutil.DoRequest(protected, testutil.NewRequest(t, http.MethodGet, "/privilege/audit"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/privilege/audit")
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := testutil.DoRequest(protected, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("valid token passes identity to the handler", func(t *testing.T) {
		minted, err := tokens.Mint("att_1", "attorney", time.Minute)
		require.NoError(t, err)

		req := testutil.NewRequest(t, http.MethodGet, "/privilege/audit")
		req.Header.Set("Authorization", "Bearer "+minted)
		rr := testutil.DoRequest(protected, req)
		testutil.AssertStatusOK(t, rr)
		require.Equal(t, "att_1", rr.Header().Get("X-User-ID"))
		require.Equal(t, "attorney", rr.Header().Get("X-Role"))
	})
}

func TestIdentityContextHelpers(t *testing.T) {
	req := testutil.WithIdentity(testutil.NewRequest(t, http.MethodGet, "/"), "para_1", "paralegal")
	require.Equal(t, "para_1", middleware.GetUserID(req.Context()))
	require.Equal(t, "paralegal", middleware.GetRole(req.Context()))

	rr := httptest.NewRecorder()
	identityEcho().ServeHTTP(rr, req)
	require.Equal(t, "para_1", rr.Header().Get("X-User-ID"))
}
