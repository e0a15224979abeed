// Package server wires the docstore reference store: storage backend,
// contents service, HTTP API and gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/docsync/internal/codec"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/server/config"
	"github.com/dmitrijs2005/docsync/internal/server/httpapi"
	"github.com/dmitrijs2005/docsync/internal/server/services"
	"github.com/dmitrijs2005/docsync/internal/server/shared/db"
	"github.com/prometheus/client_golang/prometheus"

	gs "github.com/dmitrijs2005/docsync/internal/server/grpc"
)

const (
	healthInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    db.RepositoryManager
	contents *services.ContentsService
	registry *prometheus.Registry
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	repos, err := db.Open(ctx, c.Backend, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	contents := services.NewContentsService(repos.Objects(), services.Options{
		Branch:      c.Branch,
		InlineLimit: c.InlineLimit,
		Logger:      logger.With("module", "contents"),
	})

	reg := prometheus.NewRegistry()
	metrics.RegisterServerCollectors(reg)

	app := &App{config: c, logger: logger, repos: repos, contents: contents, registry: reg}
	if err := app.seed(ctx); err != nil {
		_ = repos.Close()
		return nil, err
	}
	return app, nil
}

// seed commits the configured seed file when the document does not exist.
func (app *App) seed(ctx context.Context) error {
	if app.config.SeedFile == "" {
		return nil
	}
	data, err := os.ReadFile(app.config.SeedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if _, err := codec.DecodeDocument(data); err != nil {
		return fmt.Errorf("seed file %s: %w", app.config.SeedFile, err)
	}
	if _, err := app.contents.Seed(ctx, app.config.SeedPath, data); err != nil {
		return fmt.Errorf("seed %s: %w", app.config.SeedPath, err)
	}
	return nil
}

// Handler returns the HTTP API.
func (app *App) Handler() http.Handler {
	return httpapi.NewRouter(app.contents, httpapi.Options{
		Owner:             app.config.Owner,
		Repo:              app.config.Repo,
		PublicURL:         app.config.PublicURL,
		SecretKey:         []byte(app.config.SecretKey),
		RequestsPerSecond: app.config.RequestsPerSecond,
		Burst:             app.config.Burst,
		Gatherer:          app.registry,
		Logger:            app.logger.With("module", "http"),
	})
}

func (app *App) startHTTPServer(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) ping(ctx context.Context) error {
	conn := app.repos.Conn()
	if conn == nil {
		return nil
	}
	return conn.PingContext(ctx)
}

func (app *App) startGRPCServer(ctx context.Context, lis net.Listener) error {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger)

	go func() {
		t := time.NewTicker(healthInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Check(ctx, app.ping)
			}
		}
	}()

	return s.Serve(ctx, lis)
}

// Run serves until ctx is done or a listener fails.
func (app *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return err
	}
	var grpcLis net.Listener
	if app.config.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", app.config.GRPCAddr); err != nil {
			_ = httpLis.Close()
			return err
		}
	}
	return app.serve(ctx, httpLis, grpcLis)
}

func (app *App) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.Backend, "repository", app.config.Owner+"/"+app.config.Repo)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	run := func(start func(context.Context, net.Listener) error, lis net.Listener) {
		defer wg.Done()
		if err := start(ctx, lis); err != nil {
			app.logger.Error(ctx, err.Error())
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			cancelFunc()
		}
	}

	wg.Add(1)
	go run(app.startHTTPServer, httpLis)
	if grpcLis != nil {
		wg.Add(1)
		go run(app.startGRPCServer, grpcLis)
	}

	wg.Wait()
	return firstErr
}

func (app *App) Close() error {
	return app.repos.Close()
}
