// Command server runs the voter identity-verification service: the
// authentication state machine, the registration endpoints, and the audit
// compliance surface, over either in-memory or PostgreSQL/Redis-backed
// stores depending on configuration.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"civis/internal/authn"
	authnmetrics "civis/internal/authn/metrics"
	authnstore "civis/internal/authn/store"
	"civis/internal/biometric"
	"civis/internal/crypto"
	"civis/internal/ledger"
	ledgermetrics "civis/internal/ledger/metrics"
	"civis/internal/ledger/publisher"
	ledgerstore "civis/internal/ledger/store"
	"civis/internal/liveness"
	"civis/internal/platform/config"
	"civis/internal/platform/httpserver"
	"civis/internal/platform/logger"
	platformredis "civis/internal/platform/redis"
	"civis/internal/registry"
	"civis/internal/token"
	transport "civis/internal/transport/http"
	"civis/internal/voters"
	voterstore "civis/internal/voters/store"
)

const recordSecretEnv = "CIVIS_RECORD_SECRET"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New()
	cfg := config.FromEnv()
	policy := config.PolicyFromEnv()

	secrets, err := crypto.NewEnvSecretProvider(recordSecretEnv)
	if err != nil {
		return fmt.Errorf("record secret: %w", err)
	}
	cipher, err := crypto.NewCipher(ctx, secrets)
	if err != nil {
		return fmt.Errorf("record cipher: %w", err)
	}

	// Stores: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		eventStore  ledgerstore.EventStore = ledgerstore.NewInMemoryEventStore()
		recordStore voterstore.Store       = voterstore.NewInMemoryStore()
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		for _, schema := range []string{ledgerstore.Schema(), voterstore.Schema()} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		eventStore = ledgerstore.NewPostgres(db)
		recordStore = voterstore.NewPostgres(db)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()),
	}
	if cfg.KafkaBrokers != "" {
		mirror, err := publisher.NewKafka([]string{cfg.KafkaBrokers}, cfg.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("kafka mirror: %w", err)
		}
		defer mirror.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithFallback(mirror))
	}
	audit, err := ledger.New(eventStore, ledgerOpts...)
	if err != nil {
		return err
	}
	if err := audit.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize audit chain: %w", err)
	}

	records, err := voters.NewSecureStore(recordStore, cipher, voters.WithLogger(log))
	if err != nil {
		return err
	}

	var sessions authnstore.SessionStore = authnstore.NewInMemorySessionStore()
	var redisClient *platformredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = platformredis.New(config.RedisFromEnv())
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		sessions = authnstore.NewRedisSessionStore(redisClient)
	}

	gatewayOpts := []registry.Option{registry.WithLogger(log)}
	if cfg.RegistryURL != "" {
		gatewayOpts = append(gatewayOpts, registry.WithOnline(registry.NewHTTPClient(cfg.RegistryURL)))
	}
	gateway := registry.NewGateway(registry.NewOfflineRegistry(cipher), policy, gatewayOpts...)

	issuer, err := token.NewIssuer(cfg.JWTSigningKey)
	if err != nil {
		return err
	}

	service, err := authn.New(
		sessions, records, gateway,
		liveness.NewEngine(policy),
		audit, policy,
		authn.WithLogger(log),
		authn.WithMetrics(authnmetrics.New()),
		authn.WithTokenIssuer(issuer),
		// Deployments replace this with a device-backed capture source.
		authn.WithSource(&biometric.StaticSource{Sample: biometric.PassingSample(nil)}),
	)
	if err != nil {
		return err
	}

	health := func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Health(ctx)
		}
		return nil
	}

	router := transport.NewRouter(transport.Dependencies{
		Authn:  service,
		Audit:  audit,
		Voters: records,
		Tokens: issuer,
		Logger: log,
		Health: health,
	})
	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
