package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults suited to a long-running batch
// service: generous write timeout because several endpoints drive a full
// pipeline stage before answering.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
