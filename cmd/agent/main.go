// fleetsign-agent: endpoint remoto de la flota. Mantiene el cache local de
// claves, late heartbeats y, en modo persistent, escucha RotationEvents por
// el bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropDatabas3/fleetsign/internal/agent/client"
	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/agent/listener"
	"github.com/dropDatabas3/fleetsign/internal/agent/reconciler"
	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/bus/redisbus"
	"github.com/dropDatabas3/fleetsign/internal/config"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetsign-agent:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "ruta del YAML de configuración (vacío = solo env)")
	flag.Parse()

	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", *configPath, err)
		}
	} else {
		cfg = config.FromEnv()
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "fleetsign-agent",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L().With(
		logger.AgentID(cfg.Agent.AgentID),
		logger.TenantID(cfg.Agent.TenantID),
	)

	if cfg.Agent.ServerURL == "" || cfg.Agent.Token == "" {
		return fmt.Errorf("agent.server_url y agent.token son obligatorios")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := keycache.New(cfg.Agent.CachePath)
	if err != nil {
		return fmt.Errorf("open key cache %s: %w", cfg.Agent.CachePath, err)
	}
	cache.SetOldMaxAge(cfg.RetentionWindow())

	api := client.New(cfg.Agent.ServerURL, cfg.Agent.Token, 10*time.Second)
	rec := reconciler.New(cache, api)

	// Arranque en frío: sin claves cacheadas no se puede verificar nada,
	// así que el primer fetch es bloqueante.
	if cache.Current() == nil {
		current, old, err := api.FetchKeys(ctx)
		if err != nil {
			return fmt.Errorf("initial key fetch: %w", err)
		}
		if err := cache.Apply(current, old); err != nil {
			return fmt.Errorf("apply initial keys: %w", err)
		}
		log.Info("initial keys installed", logger.KeyHash(cache.Hash()))
	}

	// Camino event-push: solo en modo persistent.
	if cfg.Agent.Mode == "persistent" {
		scoped, err := buildScopedBus(cfg)
		if err != nil {
			return err
		}
		l := listener.New(scoped, cache, cfg.Agent.TenantID)
		go func() {
			if err := l.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("rotation listener stopped", logger.Err(err))
			}
		}()
	}

	if cfg.Agent.MetricsAddr != "" {
		go serveMetrics(cfg.Agent.MetricsAddr)
	}

	heartbeatLoop(ctx, cfg, api, rec, log)
	return nil
}

// heartbeatLoop es el camino polling: cada heartbeat compara el hash del
// server con el local y reconcilia si difieren.
func heartbeatLoop(ctx context.Context, cfg *config.Config, api *client.Client, rec *reconciler.Reconciler, log *zap.Logger) {
	interval := cfg.HeartbeatInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("agent stopping")
			return
		case <-ticker.C:
		}

		ack, err := api.Heartbeat(ctx, protocol.HeartbeatRequest{Status: "ok"})
		if err != nil {
			log.Warn("heartbeat failed", logger.Err(err))
			continue
		}

		updated, err := rec.Reconcile(ctx, ack.CurrentKeyHash)
		if err != nil {
			log.Warn("reconcile failed", logger.Err(err))
			continue
		}
		if updated {
			log.Info("keys reconciled", logger.KeyHash(ack.CurrentKeyHash))
		}
	}
}

// buildScopedBus conecta al bus y lo envuelve en el scope del tenant: el
// agente no puede suscribirse fuera de su prefix ni queriendo.
func buildScopedBus(cfg *config.Config) (*bus.Scoped, error) {
	if cfg.Bus.Driver != "redis" {
		return nil, fmt.Errorf("persistent mode requires bus.driver=redis, got %q", cfg.Bus.Driver)
	}
	b, err := redisbus.New(redisbus.Config{
		Addr:     cfg.Bus.Redis.Addr,
		Username: cfg.Bus.Redis.Username,
		Password: cfg.Bus.Redis.Password,
		DB:       cfg.Bus.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	return bus.NewScoped(b, cfg.Agent.TenantID)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.L().Warn("metrics endpoint stopped", logger.Err(err))
	}
}
