// Package web serves the console API and its Server-Sent Events stream.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/auth"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/console"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/metrics"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/gin-gonic/gin"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Sessions *console.Registry
	Users    *auth.Directory
	Gateway  *persist.Gateway
	Metrics  *metrics.Metrics

	// LoginRPS and LoginBurst limit signup and login attempts per client IP.
	LoginRPS   float64
	LoginBurst int

	Port int
	Out  io.Writer
}

func (o StartOpts) check() error {
	switch {
	case o.Sessions == nil:
		return fmt.Errorf("web: session registry is required")
	case o.Users == nil:
		return fmt.Errorf("web: user directory is required")
	case o.Gateway == nil:
		return fmt.Errorf("web: gateway is required")
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, newHandlers(opts))
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Omni console running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}
