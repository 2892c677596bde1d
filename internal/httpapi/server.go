package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerOptions tunes the HTTP server. WriteTimeout must outlast the
// assistant timeout so chatbot responses are not cut off.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Start listens on opts.Addr and serves the API in the background. It
// returns the bound address and a shutdown function that drains in-flight
// requests until ctx expires.
func Start(api *API, opts ServerOptions) (net.Addr, func(context.Context) error, error) {
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Minute
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	srv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			api.deps.Log.Error(context.Background(), "http server stopped", "error", err)
		}
	}()

	return lis.Addr(), func(ctx context.Context) error {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return err
		}
		return nil
	}, nil
}
