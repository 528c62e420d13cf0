package destruction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	dErrors "lexvault/pkg/domain-errors"
	"lexvault/pkg/testutil"
)

type fakeDestroyer struct {
	calls int
	count int64
}

func (f *fakeDestroyer) Destroy(ctx context.Context, attorneyID, clientID, reason string) (int64, error) {
	f.calls++
	n := f.count
	f.count = 0
	return n, nil
}

func TestExecuteRequiresReason(t *testing.T) {
	service := New(&fakeDestroyer{})
	_, err := service.Execute(context.Background(), "att_1", "client_1", "")
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestExecuteReportsCountAndIsIdempotent(t *testing.T) {
	destroyer := &fakeDestroyer{count: 4}
	service := New(destroyer)

	testutil.Given(t, "a pair with four active communications", func(t *testing.T) {
		testutil.When(t, "destruction runs", func(t *testing.T) {
			result, err := service.Execute(context.Background(), "att_1", "client_1", "case closed")
			require.NoError(t, err)
			require.EqualValues(t, 4, result.DestroyedCount)
			require.Equal(t, "case closed", result.Reason)
		})

		testutil.Then(t, "a repeat run finds nothing left to destroy", func(t *testing.T) {
			result, err := service.Execute(context.Background(), "att_1", "client_1", "case closed")
			require.NoError(t, err)
			require.Zero(t, result.DestroyedCount)
			require.Equal(t, 2, destroyer.calls)
		})
	})
}
