// Command datafed-core is the federation control-plane server: it
// authenticates inbound ZeroMQ clients via ZAP, fans requests out to a
// worker pool, and periodically reconciles transient grants and pending
// repository mutations. Wiring order (config, then collaborators, then
// servers, then signal wait, then graceful shutdown) follows the
// reference entrypoint shape used throughout this codebase.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/computingfreak/DataFed/internal/api"
	"github.com/computingfreak/DataFed/internal/config"
	"github.com/computingfreak/DataFed/internal/directory"
	"github.com/computingfreak/DataFed/internal/fanout"
	"github.com/computingfreak/DataFed/internal/lifecycle"
	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/security"
	"github.com/computingfreak/DataFed/internal/state"
	"github.com/computingfreak/DataFed/internal/transfer"
	"github.com/computingfreak/DataFed/internal/worker"
)

const apiPortOffset = 2

func main() {
	configPath := flag.String("config", "configs/datafed-core.yaml", "path to configuration file")
	flag.Parse()

	slog.Info("datafed-core starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "path", *configPath, "port", cfg.Port)

	sec, err := security.LoadFromDir(cfg.CredDir)
	if err != nil {
		slog.Error("loading security context", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle, err := directory.NewPGOracle(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("connecting directory oracle", "err", err)
		os.Exit(1)
	}
	defer oracle.Close()

	mc := metrics.New()

	registry := repo.NewRegistry()
	descriptors, err := oracle.ListRepositories(ctx)
	if err != nil {
		slog.Error("listing repositories", "err", err)
		os.Exit(1)
	}
	if errs := registry.Load(descriptors); len(errs) != 0 {
		for _, e := range errs {
			slog.Warn("repository rejected", "err", e)
		}
	}
	slog.Info("repositories loaded", "count", registry.Len())

	st := state.New()
	tm := transfer.NewManager()

	fanoutCfg := fanout.Config{
		SecurePort:    cfg.Port,
		CleartextPort: cfg.Port + 1,
		NumWorkers:    int(cfg.NumClientWorkerThreads),
	}

	controller := lifecycle.New(sec, registry, st, oracle, mc, tm, fanoutCfg, worker.NoopHandler{})
	if err := controller.Start(ctx); err != nil {
		slog.Error("starting controller", "err", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(registry, st, controller, mc)
	if err := apiServer.Start(int(cfg.Port) + apiPortOffset); err != nil {
		slog.Error("starting admin API", "err", err)
		os.Exit(1)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		slog.Info("configuration file changed, reloading repository descriptors", "path", *configPath)
		descriptors, err := oracle.ListRepositories(ctx)
		if err != nil {
			slog.Error("reloading repositories", "err", err)
			return
		}
		if errs := registry.Load(descriptors); len(errs) != 0 {
			for _, e := range errs {
				slog.Warn("repository rejected", "err", e)
			}
		}
		slog.Info("repositories reloaded", "count", registry.Len())
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "err", err)
	}

	slog.Info("datafed-core ready", "secure_port", fanoutCfg.SecurePort, "cleartext_port", fanoutCfg.CleartextPort, "api_port", int(cfg.Port)+apiPortOffset)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	apiServer.Stop()
	controller.Stop()

	slog.Info("datafed-core stopped")
}
