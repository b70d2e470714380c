package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"

	"formkit/internal/gateway/config"
	"formkit/internal/gateway/handler"
	"formkit/internal/gateway/metrics"
	"formkit/internal/gateway/server"
)

type App struct {
	cfg     *config.Config
	server  *server.Server
	handler http.Handler
	stores  *gatewayStores
}

// New loads configuration from args and the environment and wires the gateway.
func New(args []string, logger logr.Logger) (*App, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, logger)
}

func NewWithConfig(cfg *config.Config, logger logr.Logger) (*App, error) {
	// Dependencies
	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	searchHandler := handler.NewSearchHandler(stores.catalog, m, logger)
	uploadHandler := handler.NewUploadHandler(handler.UploadConfig{
		Store:    stores.artifact,
		Metrics:  m,
		MaxBytes: cfg.UploadMaxBytes,
		BaseURL:  cfg.PublicBaseURL,
		Logger:   logger,
	})

	// Routing & Server
	mux := server.NewMux(searchHandler, uploadHandler, m)
	return &App{
		cfg:     cfg,
		server:  server.New(cfg.Port, mux),
		handler: mux,
		stores:  stores,
	}, nil
}

func (a *App) Config() *config.Config { return a.cfg }

// Handler exposes the routed handler without the listener.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.stores.close()
	return err
}
