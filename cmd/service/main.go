// fleetsign-service: API administrativa + API de agentes + coordinator de
// rotación. Un solo proceso sirve los dos caminos de descubrimiento: el bus
// (event-push) y el par key-fetch/heartbeat (polling).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/fleetsign/internal/alert"
	"github.com/dropDatabas3/fleetsign/internal/auth"
	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/bus/membus"
	"github.com/dropDatabas3/fleetsign/internal/bus/redisbus"
	"github.com/dropDatabas3/fleetsign/internal/config"
	httpx "github.com/dropDatabas3/fleetsign/internal/http"
	adminctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/admin"
	agentctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/agentapi"
	healthctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/health"
	adminsvc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	agentsvc "github.com/dropDatabas3/fleetsign/internal/http/services/agentapi"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/rate"
	"github.com/dropDatabas3/fleetsign/internal/rotation"
	"github.com/dropDatabas3/fleetsign/internal/signing"
	"github.com/dropDatabas3/fleetsign/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetsign-service:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "ruta del YAML de configuración (vacío = solo env)")
	flag.Parse()

	// .env es opcional; en prod la config viene del entorno real.
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
		ServiceName: "fleetsign-service",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if cfg.Server.AdminAPIKey == "" {
		return fmt.Errorf("server.admin_api_key (o ADMIN_API_KEY) es obligatorio")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Persistencia ───
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return fmt.Errorf("open store (%s): %w", cfg.Storage.Driver, err)
	}
	defer func() { _ = st.Close() }()
	log.Info("store ready", logger.String("driver", cfg.Storage.Driver))

	// ─── Custodio ───
	custodian, err := buildCustodian(cfg)
	if err != nil {
		return err
	}

	// ─── Bus ───
	b, err := buildBus(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	log.Info("bus ready", logger.String("driver", cfg.Bus.Driver))

	// ─── Notifier (opcional) ───
	var notifier rotation.Notifier
	if cfg.Alert.Enabled {
		notifier = alert.NewMailer(alert.SMTPConfig{
			Host: cfg.Alert.Host,
			Port: cfg.Alert.Port,
			User: cfg.Alert.User,
			Pass: cfg.Alert.Pass,
			From: cfg.Alert.From,
			To:   cfg.Alert.To,
		})
	}

	// ─── Núcleo de rotación ───
	coordinator := rotation.NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())
	distributor := rotation.NewDistributor(b, st.Tenants(), notifier)
	provider := rotation.NewProvider(st.Keys())
	signer := rotation.NewArtifactSigner(custodian, st.Artifacts())

	janitor := rotation.NewJanitor(st.Keys(), cfg.RetentionWindow())
	go janitor.Run(ctx)

	// ─── Auth de agentes ───
	tokens, err := auth.NewTokenManager(cfg.AgentAuth.Secret, cfg.AgentAuth.Issuer, cfg.AgentTokenTTL())
	if err != nil {
		return fmt.Errorf("agent token manager: %w", err)
	}

	// ─── HTTP ───
	handler := httpx.NewRouter(httpx.RouterDeps{
		AdminAPIKey:  cfg.Server.AdminAPIKey,
		Tokens:       tokens,
		AgentLimiter: buildLimiter(cfg),

		Rotation:  adminctl.NewRotationController(adminsvc.NewRotationService(coordinator, distributor, provider)),
		Tenants:   adminctl.NewTenantsController(adminsvc.NewTenantsService(st.Tenants())),
		Agents:    adminctl.NewAgentsController(adminsvc.NewAgentsService(st.Agents(), st.Tenants(), tokens)),
		Keys:      adminctl.NewKeysController(adminsvc.NewKeysService(st.Keys(), st.RotationEvents())),
		Artifacts: adminctl.NewArtifactsController(adminsvc.NewArtifactsService(signer, st.Artifacts())),

		Agent:  agentctl.NewController(agentsvc.New(provider, st.Agents())),
		Health: healthctl.NewController(st),
	})

	srv := httpx.NewServer(cfg.Server.Addr, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildCustodian arma el custodio local. Con custodian_key_file se reusa la
// misma clave entre arranques; sin archivo la clave es efímera (solo dev).
func buildCustodian(cfg *config.Config) (signing.Custodian, error) {
	if path := cfg.Keys.CustodianKeyFile; path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read custodian key %s: %w", path, err)
		}
		c, err := signing.NewLocalCustodianFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("parse custodian key %s: %w", path, err)
		}
		return c, nil
	}
	logger.L().Warn("no custodian_key_file configured, using ephemeral key")
	return signing.NewLocalCustodian()
}

func buildBus(cfg *config.Config) (bus.Bus, error) {
	switch cfg.Bus.Driver {
	case "redis":
		return redisbus.New(redisbus.Config{
			Addr:     cfg.Bus.Redis.Addr,
			Username: cfg.Bus.Redis.Username,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
		})
	case "memory", "":
		return membus.New(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}
}

// buildLimiter arma el rate limiter de la API de agentes. Con bus Redis el
// límite se comparte entre instancias; con bus memory es por proceso.
func buildLimiter(cfg *config.Config) rate.Limiter {
	max := cfg.Server.AgentRateLimit
	if max <= 0 {
		return nil
	}
	if cfg.Bus.Driver == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Bus.Redis.Addr,
			Username: cfg.Bus.Redis.Username,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "", max, time.Minute)
	}
	return rate.NewMemoryLimiter(max, time.Minute)
}
