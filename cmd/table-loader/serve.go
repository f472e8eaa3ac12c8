package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/config"
	"github.com/txn2/table-loader/pkg/health"
	"github.com/txn2/table-loader/pkg/resultcache"
	tablestk "github.com/txn2/table-loader/pkg/toolkits/tables"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// newMCPServer builds an MCP server exposing the table tools.
func newMCPServer(cfg *config.Config, cat catalog.Catalog, cache *resultcache.Cache) (*mcp.Server, error) {
	tk, err := tablestk.New(cfg.Server.Name, cat, cache, tablestk.Config{
		Source:         cfg.Database,
		DefaultMaxRows: cfg.Toolkit.DefaultMaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tables toolkit: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: cfg.Server.Name, Version: version}, nil)
	tk.RegisterTools(server)
	slog.Info("toolkit registered", "kind", tk.Kind(), "name", tk.Name(), "source", tk.Connection(), "tools", tk.Tools())
	return server, nil
}

func serve(ctx context.Context, cfg *config.Config, cat catalog.Catalog, cache *resultcache.Cache) error {
	server, err := newMCPServer(cfg, cat, cache)
	if err != nil {
		return err
	}

	switch cfg.Server.Transport {
	case config.TransportStdio:
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("running stdio server: %w", err)
		}
		return nil
	case config.TransportHTTP:
		checker := newChecker(cat, cfg.Server.ProbeTimeout)
		return serveHTTP(ctx, cfg.Server.Address, newHTTPHandler(server, checker), checker)
	default:
		return fmt.Errorf("unknown transport: %s", cfg.Server.Transport)
	}
}

// newChecker probes the catalog when it supports pinging.
func newChecker(cat catalog.Catalog, probeTimeout time.Duration) *health.Checker {
	var opts []health.Option
	if p, ok := cat.(catalog.Pinger); ok {
		opts = append(opts, health.WithProbe(p.Ping))
	}
	if probeTimeout > 0 {
		opts = append(opts, health.WithProbeTimeout(probeTimeout))
	}
	return health.NewChecker(opts...)
}

func newHTTPHandler(server *mcp.Server, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	checker.Register(mux)
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	checker.SetReady()
	return mux
}

func serveHTTP(ctx context.Context, address string, handler http.Handler, checker *health.Checker) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over http", "address", address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		checker.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	}
}
