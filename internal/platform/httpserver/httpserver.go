// Package httpserver builds the service's HTTP server with its standard
// timeouts.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server for the given handler. Clock and location
// requests are small JSON bodies, so the read and header timeouts are
// deliberately tight; idle keep-alive connections from field devices are
// reaped after a minute.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
