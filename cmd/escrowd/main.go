package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"workescrow/config"
	"workescrow/core/eventlog"
	"workescrow/core/events"
	"workescrow/core/state"
	"workescrow/native/escrow"
	"workescrow/native/params"
	"workescrow/observability/logging"
	telemetry "workescrow/observability/otel"
	"workescrow/rpc"
	"workescrow/storage"
)

const (
	serviceName     = "escrowd"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, err := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("escrowd terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           svc.rpc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
		close(errCh)
	}()
	if err := waitForRPCStartup(cfg.ListenAddress, errCh, 5*time.Second); err != nil {
		return err
	}
	logger.Info("escrowd listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("backend", cfg.DBBackend),
	)

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
	}

	logger.Info("escrowd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// service holds the long-lived components behind the RPC server.
type service struct {
	db      storage.Database
	journal *eventlog.Journal
	state   *state.Manager
	engine  *escrow.Engine
	rpc     *rpc.Server
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	manager := state.NewManager(db)

	allocs, err := allocations(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	applied, err := manager.ApplyAllocations(allocs)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply allocations: %w", err)
	}
	if applied && len(allocs) > 0 {
		logger.Info("initial allocations credited", slog.Int("count", len(allocs)))
	}

	journal, err := eventlog.Open(cfg.EventLogPath, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := events.NewBus(journal)
	store := params.NewStore(manager, cfg.Pauses)
	store.SetLogger(logger)

	engine := escrow.NewEngine(manager)
	engine.SetEmitter(bus)
	engine.SetPauses(store)
	engine.SetLogger(logger)

	server, err := rpc.NewServer(rpc.Deps{
		Engine:  engine,
		Ledger:  manager,
		Journal: journal,
		Bus:     bus,
		Params:  store,
		Logger:  logger,
	}, rpc.Config{
		AllowedSkew:       cfg.RPC.AllowedSkew(),
		RequestsPerMinute: float64(cfg.RPC.RequestsPerMinute),
		Burst:             cfg.RPC.Burst,
		AdminSecret:       cfg.RPC.ResolveAdminSecret(),
		MintQuota:         cfg.RPC.MintQuota.Quota(),
	})
	if err != nil {
		_ = journal.Close()
		db.Close()
		return nil, fmt.Errorf("initialise rpc server: %w", err)
	}
	if cfg.RPC.ResolveAdminSecret() == "" {
		logger.Warn("no admin secret configured; ledger_mint and admin methods are disabled")
	}

	return &service{db: db, journal: journal, state: manager, engine: engine, rpc: server}, nil
}

func (s *service) Close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DBBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB, "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db backend %q", cfg.DBBackend)
	}
}

func allocations(cfg *config.Config) ([]state.Allocation, error) {
	out := make([]state.Allocation, 0, len(cfg.Allocations))
	for _, alloc := range cfg.Allocations {
		addr, err := alloc.Handle()
		if err != nil {
			return nil, fmt.Errorf("allocation %q: %w", alloc.Address, err)
		}
		out = append(out, state.Allocation{Address: addr, Amount: alloc.Amount})
	}
	return out, nil
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			if !ok || err == nil {
				return fmt.Errorf("RPC server exited before startup confirmation")
			}
			return err
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
