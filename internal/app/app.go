// Package app wires configuration into the running components shared by the
// daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/budgetsync/internal/config"
	"github.com/dvloznov/budgetsync/internal/connectivity"
	"github.com/dvloznov/budgetsync/internal/dataaccess"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/rs/zerolog"
)

// App holds one user's running components.
type App struct {
	Config  *config.Config
	Local   localstore.Store
	Remote  remote.DocumentStore
	Monitor *connectivity.Monitor
	Session *dataaccess.Session
	Reports *report.Service

	log     zerolog.Logger
	closers []io.Closer
}

// Build opens the stores and creates the session. It does not start any
// background work; see Start.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if cfg.UserID == "" {
		return nil, errors.New("Build: user_id is required")
	}
	a := &App{Config: cfg, log: log}

	rs, err := openRemote(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	a.Remote = rs
	if c, ok := rs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var prober connectivity.Prober
	if cfg.Connectivity.ProbeURL != "" {
		prober = connectivity.HTTPProber{URL: cfg.Connectivity.ProbeURL}
	}
	a.Monitor = connectivity.NewMonitor(true, prober, log)

	mode := dataaccess.SelectMode(cfg)
	if mode == dataaccess.ModeCacheThrough {
		local := localstore.Open(cfg.Local.Path, log)
		a.Local = local
		a.closers = append(a.closers, local)
	}

	a.Session, err = dataaccess.NewSession(
		dataaccess.Options{UserID: cfg.UserID, Mode: mode, SeedDefaults: cfg.Sync.SeedDefaults},
		dataaccess.Deps{Local: a.Local, Remote: a.Remote, Monitor: a.Monitor, Logger: log},
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}

	history, err := openHistory(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}
	if c, ok := history.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	var gen report.Generator
	if g, err := report.NewGeminiGenerator(ctx, cfg.Reports.Model); err != nil {
		log.Warn().Err(err).Msg("Report generator unavailable, reports will fail")
		gen = report.Unavailable(err)
	} else {
		gen = g
	}
	a.Reports = report.NewService(gen, history, cfg.Reports.HistoryLimit, log)

	return a, nil
}

func openRemote(ctx context.Context, cfg *config.Config, log zerolog.Logger) (remote.DocumentStore, error) {
	switch cfg.Remote.Backend {
	case "gcs":
		return remote.NewGCSStore(ctx, cfg.Remote.Bucket, cfg.Remote.PollInterval, log)
	case "memory":
		log.Warn().Msg("Using in-memory remote store, data is not shared across processes")
		return remote.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

func openHistory(ctx context.Context, cfg *config.Config, log zerolog.Logger) (report.HistoryStore, error) {
	if cfg.Reports.Project == "" {
		log.Info().Msg("No BigQuery project configured, report history kept in memory")
		return report.NewMemoryHistory(), nil
	}
	h, err := report.NewBigQueryHistory(ctx, cfg.Reports.Project, cfg.Reports.Dataset)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Start begins connectivity probing and the session's sync loop.
func (a *App) Start(ctx context.Context) error {
	if err := a.Monitor.Start(ctx, a.Config.Connectivity.Schedule); err != nil {
		return fmt.Errorf("Start: %w", err)
	}
	a.Session.Start(ctx)
	return nil
}

// Close stops the session and releases stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
