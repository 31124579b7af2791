package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exodusfi/exodus/internal/api"
	"github.com/exodusfi/exodus/internal/config"
	"github.com/exodusfi/exodus/internal/custody"
	"github.com/exodusfi/exodus/internal/database"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/export"
	"github.com/exodusfi/exodus/internal/identity"
	"github.com/exodusfi/exodus/internal/ledger"
	"github.com/exodusfi/exodus/internal/metrics"
	"github.com/exodusfi/exodus/internal/navsource"
	"github.com/exodusfi/exodus/internal/oracle"
	"github.com/exodusfi/exodus/internal/snapshot"
	"github.com/exodusfi/exodus/internal/source"
	"github.com/exodusfi/exodus/internal/store"
	"github.com/exodusfi/exodus/internal/worker"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg       config.Config
	store     store.Store
	engine    *ledger.Engine
	stats     *metrics.Service
	snapshots *snapshot.Service
	hub       *events.Hub
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	return database.Open(ctx, cfg.DatabaseURL)
}

// build wires the service graph. Unset DATABASE_URL or RECORDS_URL select in-memory
// implementations for local development.
func build(ctx context.Context, cfg config.Config) (*app, error) {
	mode, err := ledger.ParseRateMode(cfg.RateMode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, hub: events.NewHub()}

	var snapshotRepo snapshot.Repository
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		a.store = store.NewMemoryStore()
		snapshotRepo = snapshot.NewMemoryRepository()
	} else {
		pool, err := connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.store = store.NewPgStore(pool)
		snapshotRepo = snapshot.NewPgRepository(pool)
	}

	var records source.Fetcher
	if cfg.RecordsURL == "" {
		slog.Warn("RECORDS_URL not set, using in-memory record source")
		records = source.NewMemoryFetcher()
	} else {
		records = source.NewHTTPFetcher(cfg.RecordsURL, cfg.RecordsRetryMax, cfg.RecordsRetryBaseDelay)
	}

	// Identity records change rarely; prices and NAV are always read fresh.
	identityRecords, err := source.NewCachedFetcher(records, cfg.IdentityCacheTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating identity cache: %w", err)
	}
	a.closers = append(a.closers, identityRecords.Close)

	slog.Warn("custody transfers are recorded in the in-process book")
	sink := events.Fanout{events.NewLogSink(slog.Default()), a.hub}

	a.engine = ledger.NewEngine(
		a.store,
		custody.NewBook(),
		oracle.NewAdapter(records, cfg.OracleMaxAge),
		identity.NewService(identityRecords),
		navsource.NewReader(records),
		sink,
		ledger.WithRateMode(mode),
	)
	a.stats = metrics.NewService(a.store)
	a.snapshots = snapshot.NewService(a.stats, snapshotRepo)
	return a, nil
}

// exporter returns the configured Google Sheets export hook, or nil.
func (a *app) exporter(ctx context.Context) *export.Service {
	if a.cfg.GoogleSheetsID == "" || a.cfg.GoogleCredentialsJSON == "" {
		return nil
	}
	w, err := export.NewSheetsWriter(ctx, a.cfg.GoogleSheetsID, a.cfg.GoogleCredentialsJSON)
	if err != nil {
		slog.Error("failed to create sheets writer, export disabled", "error", err)
		return nil
	}
	return export.NewService(a.store, w)
}

func (a *app) startWorkers(ctx context.Context) {
	if a.cfg.KeeperID == "" {
		slog.Warn("KEEPER_ID not set, keeper operations will be rejected")
	}
	if a.cfg.SettlementPoolID == "" {
		slog.Warn("SETTLEMENT_POOL_ID not set, settlement worker disabled")
	} else {
		go worker.NewSettlementWorker(a.store, a.engine, a.cfg.KeeperID, a.cfg.SettlementPoolID, a.cfg.SettlementInterval).Run(ctx)
	}
	go worker.NewNavWorker(a.store, a.engine, a.cfg.KeeperID, a.cfg.NAVInterval).Run(ctx)
	go worker.NewExpiryWorker(a.store, a.engine, a.cfg.KeeperID, a.cfg.ExpiryInterval).Run(ctx)

	var hook worker.AfterSnapshotHook
	if exp := a.exporter(ctx); exp != nil {
		hook = exp
	}
	go worker.NewSnapshotWorker(a.snapshots, a.cfg.SnapshotInterval, hook).Run(ctx)
}

func serve(ctx context.Context, cfg config.Config, withKeeper bool) error {
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if withKeeper {
		a.startWorkers(ctx)
	}

	srv := api.NewServer(api.Options{
		Port:             cfg.HTTPPort,
		AdminAPIKey:      cfg.AdminAPIKey,
		KeeperAPIKey:     cfg.KeeperAPIKey,
		AuthorityID:      cfg.AuthorityID,
		KeeperID:         cfg.KeeperID,
		SettlementPoolID: cfg.SettlementPoolID,
	}, api.Deps{
		Ledger:    a.engine,
		Reader:    a.store,
		Stats:     a.stats,
		Snapshots: a.snapshots,
		Events:    a.hub,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func keeper(ctx context.Context, cfg config.Config) error {
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.startWorkers(ctx)
	<-ctx.Done()
	log.Println("Keeper stopped")
	return nil
}

func migrate(ctx context.Context, cfg config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	pool.Close()
	log.Println("Migrations applied")
	return nil
}

func exportLedger(ctx context.Context, cfg config.Config, xlsxPath string, toSheets bool) error {
	if xlsxPath == "" && !toSheets {
		return errors.New("nothing to do: pass --xlsx PATH and/or --sheets")
	}
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if xlsxPath != "" {
		if err := export.NewService(a.store, export.NewXLSXWriter(xlsxPath)).Export(ctx); err != nil {
			return fmt.Errorf("exporting workbook: %w", err)
		}
		log.Printf("Ledger written to %s", xlsxPath)
	}
	if toSheets {
		exp := a.exporter(ctx)
		if exp == nil {
			return errors.New("GOOGLE_SHEETS_ID and GOOGLE_CREDENTIALS_JSON are required for --sheets")
		}
		if err := exp.Export(ctx); err != nil {
			return fmt.Errorf("exporting to sheets: %w", err)
		}
		log.Println("Ledger written to Google Sheets")
	}
	return nil
}
