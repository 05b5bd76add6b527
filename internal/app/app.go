// Package app wires the composition root: every component constructed from
// configuration, passed down to the HTTP surface, with no module-load side
// effects and no hidden connections opened at import.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/adlcgate/internal/config"
	"github.com/wisbric/adlcgate/internal/governance"
	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/identity"
	"github.com/wisbric/adlcgate/internal/inference"
	"github.com/wisbric/adlcgate/internal/ledger"
	"github.com/wisbric/adlcgate/internal/lock"
	"github.com/wisbric/adlcgate/internal/notify"
	"github.com/wisbric/adlcgate/internal/platform"
	"github.com/wisbric/adlcgate/internal/redact"
	"github.com/wisbric/adlcgate/internal/telemetry"
	"github.com/wisbric/adlcgate/internal/telemetryqueue"
	"github.com/wisbric/adlcgate/internal/vault"
	"github.com/wisbric/adlcgate/internal/version"
	"github.com/wisbric/adlcgate/pkg/chat"
	"github.com/wisbric/adlcgate/pkg/compliance"
	"github.com/wisbric/adlcgate/pkg/deviceauth"
	"github.com/wisbric/adlcgate/pkg/secrets"
	"github.com/wisbric/adlcgate/pkg/workbench"
)

const serviceName = "adlcgate"

// Run is the main entry point. It reads infrastructure out of cfg and
// starts the mode it names: "api" for the HTTP gateway, "worker" for the
// telemetry dead-letter backlog monitor.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting adlcgate", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, logger, db)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// components bundles every constructed C1-C8 collaborator so runAPI can
// wire them into the HTTP surface without a sprawling parameter list.
type components struct {
	resolver      *identity.Resolver
	deviceIssuer  *identity.TokenIssuer
	deviceVerify  *identity.TokenVerifier
	authenticator *identity.CompositeAuthenticator

	ledger    *ledger.Ledger
	vaultRd   *vault.Store
	breaker   *inference.Breaker
	proxy     *inference.Proxy
	scrubber  *redact.Scrubber
	queue     *telemetryqueue.Queue
	lockMgr   *lock.Manager
	pipeline  *governance.Pipeline
	sink      *notify.Sink
	deviceSt  *deviceauth.Store
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*components, error) {
	c := &components{}

	c.sink = notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if c.sink.IsEnabled() {
		logger.Info("ops alert sink enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("ops alert sink disabled (SLACK_BOT_TOKEN not set)")
	}

	// C1 — identity.
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		resolver, err := identity.NewResolver(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("initializing identity resolver: %w", err)
		}
		c.resolver = resolver
		logger.Info("OIDC identity provider configured", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC_ISSUER_URL not set, falling back to dev-bypass identity outside production")
	}

	deviceSecret := cfg.DeviceFlowSigningSecret
	if deviceSecret == "" {
		deviceSecret = "adlcgate-dev-only-device-flow-secret"
		logger.Warn("DEVICE_FLOW_SIGNING_SECRET not set, using an insecure development default")
	}
	issuer, err := identity.NewTokenIssuer(deviceSecret, cfg.DeviceFlowTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating device flow token issuer: %w", err)
	}
	c.deviceIssuer = issuer
	c.deviceVerify = identity.NewTokenVerifier(deviceSecret)

	var oidcLeg identity.Authenticator
	switch {
	case c.resolver != nil:
		oidcLeg = c.resolver
	case cfg.Environment != "production":
		oidcLeg = identity.NewDevBypassAuthenticator()
	default:
		return nil, fmt.Errorf("OIDC_ISSUER_URL and OIDC_CLIENT_ID are required in production")
	}
	c.authenticator = identity.NewCompositeAuthenticator(c.deviceVerify, oidcLeg)

	c.deviceSt = deviceauth.New(cfg.DeviceFlowPollInterval, cfg.DeviceFlowAutoApprove, cfg.DeviceFlowTokenTTL)

	// C2 — budget ledger.
	c.ledger = ledger.New(rdb, cfg.DefaultDailyBudgetMicros, cfg.BudgetOverrunSlack, cfg.ReservationTTL)
	c.ledger.OnOverrun = func(userID string) { c.sink.BudgetOverrun(context.Background(), userID) }

	// C3 — vault.
	c.vaultRd = vault.NewStore(db, cfg.VaultMasterKey)
	if err := c.vaultRd.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensuring vault schema: %w", err)
	}

	// C4 — redaction.
	c.scrubber = redact.New(redact.DefaultDetector{})

	// C5 — inference proxy + circuit breaker.
	c.breaker = inference.NewBreaker(cfg.BreakerFailureThreshold, cfg.BreakerFailureWindow, cfg.BreakerCooldown)
	c.breaker.OnOpen = func(model string) { c.sink.BreakerOpen(context.Background(), model) }
	c.proxy = inference.NewProxy(c.breaker, cfg.InferenceAllowedModels, "https://api.provider.internal/v1/models/%s/chat", cfg.InferenceTimeout)

	// C6 — telemetry queue.
	telemetryStore := telemetryqueue.NewPostgresStore(db)
	if err := telemetryStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensuring telemetry schema: %w", err)
	}
	c.queue = telemetryqueue.New(telemetryStore, logger, telemetryqueue.Config{
		BufferSize:   cfg.TelemetryQueueSize,
		Workers:      cfg.TelemetryWorkers,
		FlushBatch:   cfg.TelemetryFlushBatch,
		FlushPeriod:  cfg.TelemetryFlushPeriod,
		MaxRetries:   cfg.TelemetryMaxRetries,
		DrainTimeout: cfg.TelemetryDrainTimeout,
	})
	c.queue.Start(ctx)

	// C8 — draft lock manager.
	c.lockMgr = lock.New(db, cfg.DraftLockTTL)
	if err := c.lockMgr.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensuring draft lock schema: %w", err)
	}

	// C7 — governance pipeline composing C1-C6.
	const inputTokenRateMicros, outputTokenRateMicros = 2, 6
	c.pipeline = governance.New(c.ledger, c.vaultRd, c.proxy, c.scrubber, c.queue, logger, inputTokenRateMicros, outputTokenRateMicros)

	return c, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	c, err := buildComponents(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	defer c.queue.Close()

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:        cfg.MetricsPath,
	}, logger, db, rdb, metricsReg)

	// Unauthenticated surface: device flow issuance/polling, compliance
	// attestation. You need a token to get past authentication, so the
	// device flow itself cannot require one.
	deviceHandler := deviceauth.NewHandler(c.deviceSt, c.deviceIssuer)
	srv.Router.Mount("/api/v1/auth", deviceHandler.Routes())

	allowedModels := cfg.InferenceAllowedModels
	complianceHandler := compliance.NewHandler(allowedModels, []string{"EMAIL", "PHONE_NUMBER", "SSN", "PERSON"})
	srv.Router.Get("/api/v1/system/compliance", complianceHandler.Handle)

	// Authenticated surface.
	srv.APIRouter.Use(httpserver.Authenticate(c.authenticator, logger))

	chatHandler := chat.NewHandler(c.pipeline)
	srv.APIRouter.Post("/chat/completions", chatHandler.Create)

	workbenchHandler := workbench.NewHandler(c.lockMgr)
	srv.APIRouter.Mount("/workbench/drafts", workbenchHandler.Routes())

	secretsHandler := secrets.NewHandler(c.vaultRd)
	srv.APIRouter.Post("/vault/secrets", secretsHandler.Create)

	logger.Info("governance gateway version", "version", version.Version, "commit", version.Commit)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker periodically logs the telemetry dead-letter backlog so an
// operator notices a sink that has started silently failing. It opens no
// HTTP listener.
func runWorker(ctx context.Context, logger *slog.Logger, db *pgxpool.Pool) error {
	logger.Info("worker started")
	store := telemetryqueue.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring telemetry schema: %w", err)
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			count, err := store.DeadLetterBacklog(ctx)
			if err != nil {
				logger.Error("checking telemetry dead-letter backlog failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Warn("telemetry dead-letter backlog non-empty", "count", count)
			}
		}
	}
}
