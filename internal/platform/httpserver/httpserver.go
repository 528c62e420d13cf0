// Package httpserver configures the listener fronting the privilege API.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server. ReadHeaderTimeout bounds slow-header clients;
// per-request deadlines come from the services' storage timeouts, not the
// server.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
