// Command opscore runs the Ops-Core control-plane process: it loads
// configuration, wires the state store, lifecycle manager, workflow
// engine, and HTTP surface, seeds workflow definitions, and serves until
// a shutdown signal arrives. Modeled on the teacher's
// cmd/cliaimonitor/main.go composition-root structure and graceful
// shutdown handling, minus the multi-instance PID-lock machinery (Ops-
// Core is a single authoritative control-plane process, not a
// locally-spawned CLI tool guarding against duplicate local invocations).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opscore/core/internal/config"
	"github.com/opscore/core/internal/eventlog"
	"github.com/opscore/core/internal/lifecycle"
	"github.com/opscore/core/internal/routing"
	"github.com/opscore/core/internal/server"
	"github.com/opscore/core/internal/store"
	"github.com/opscore/core/internal/workflow"
)

func main() {
	os.Exit(run())
}

// run returns a process exit code: 0 clean shutdown, 1 configuration
// error, 2 backend unreachable at startup, per spec.md §6.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[OPSCORE] configuration error: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := buildStore(ctx, cfg)
	if err != nil {
		log.Printf("[OPSCORE] backend unreachable at startup: %v", err)
		return 2
	}

	bus, cleanupEvents := buildEventBus(cfg)
	defer cleanupEvents()

	lifecycleMgr := lifecycle.New(s)
	routingClient := routing.New(cfg.RoutingBaseURL, cfg.RoutingTimeout())
	engine := workflow.New(s, lifecycleMgr, routingClient, bus)

	seedWorkflows(ctx, cfg, engine)

	srv := server.New(server.Config{
		Addr:          cfg.HTTPListenAddr,
		APIKey:        cfg.APIKey,
		WebhookSecret: cfg.WebhookSecret,
		Lifecycle:     lifecycleMgr,
		Engine:        engine,
		Bus:           bus,
	})

	go engine.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[OPSCORE] listening on %s", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[OPSCORE] received signal %s, shutting down", sig)
	case err := <-errCh:
		log.Printf("[OPSCORE] http server error: %v", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[OPSCORE] graceful shutdown error: %v", err)
	}

	log.Printf("[OPSCORE] clean shutdown")
	return 0
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		return store.NewRedis(ctx, store.RedisConfig{
			Host: cfg.RedisHost,
			Port: cfg.RedisPort,
			DB:   cfg.RedisDB,
		})
	default:
		return store.NewMemory(), nil
	}
}

func buildEventBus(cfg *config.Config) (*eventlog.Bus, func()) {
	bus := eventlog.NewBus()
	var closers []func()

	if cfg.EventAuditDBPath != "" {
		sqliteStore, err := eventlog.NewSQLiteStore(cfg.EventAuditDBPath)
		if err != nil {
			log.Printf("[OPSCORE] event audit log disabled: %v", err)
		} else {
			bus.AddSink(sqliteStore)
			closers = append(closers, func() { sqliteStore.Close() })
		}
	}

	natsURL := cfg.EventsNATSURL
	if cfg.EventsNATSEmbedded {
		embedded, err := eventlog.StartEmbeddedNATS(eventlog.EmbeddedNATSConfig{})
		if err != nil {
			log.Printf("[OPSCORE] embedded NATS server disabled: %v", err)
		} else {
			natsURL = embedded.ClientURL()
			closers = append(closers, embedded.Shutdown)
		}
	}
	if natsURL != "" {
		publisher, err := eventlog.NewNATSPublisher(natsURL)
		if err != nil {
			log.Printf("[OPSCORE] NATS event transport disabled: %v", err)
		} else {
			bus.AddSink(publisher)
			closers = append(closers, publisher.Close)
		}
	}

	return bus, func() {
		for _, c := range closers {
			c()
		}
	}
}

func seedWorkflows(ctx context.Context, cfg *config.Config, engine *workflow.Engine) {
	if cfg.SeedWorkflowsPath == "" {
		return
	}
	defs, err := workflow.LoadSeedDefinitions(cfg.SeedWorkflowsPath)
	if err != nil {
		log.Printf("[OPSCORE] failed to load seed workflows from %s: %v", cfg.SeedWorkflowsPath, err)
		return
	}
	for _, def := range defs {
		if _, err := engine.CreateWorkflow(ctx, def); err != nil {
			log.Printf("[OPSCORE] failed to seed workflow %s: %v", def.Name, err)
			continue
		}
		log.Printf("[OPSCORE] seeded workflow %s v%s (%d tasks)", def.Name, def.Version, len(def.Tasks))
	}
}
