package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/bonuspilot/loyalty-engine/internal/accounts"
	"github.com/bonuspilot/loyalty-engine/internal/api"
	"github.com/bonuspilot/loyalty-engine/internal/deutschlandcard"
	"github.com/bonuspilot/loyalty-engine/internal/engine"
	"github.com/bonuspilot/loyalty-engine/internal/jobs"
	"github.com/bonuspilot/loyalty-engine/internal/payback"
	"github.com/bonuspilot/loyalty-engine/internal/publisher"
	"github.com/bonuspilot/loyalty-engine/internal/rate"
	internalsecrets "github.com/bonuspilot/loyalty-engine/internal/secrets"
	"github.com/bonuspilot/loyalty-engine/internal/store"
	"github.com/bonuspilot/loyalty-engine/pkg/config"
	"github.com/bonuspilot/loyalty-engine/pkg/logger"
	"github.com/bonuspilot/loyalty-engine/pkg/secrets"
	"github.com/bonuspilot/loyalty-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [loyalty-engine]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Provider configs (AWS Secrets Manager with env fallback) ---
	dcCfg, pbCfg := resolveProviderConfigs(ctx, cfg)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter (shared across provider endpoints) ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
		Cooldown:          1 * time.Second,
	})

	// --- Result store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{}, cfg.ResultTTL, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Account store ---
	accountStore, err := accounts.New(ctx, cfg.DatabaseURL, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init account store", "error", err)
	}

	// --- Provider adapters ---
	dcAdapter := deutschlandcard.NewAdapter(
		logg.Desugar(),
		deutschlandcard.NewClient(logg.Desugar(), rateMgr),
		dcCfg,
	)
	pbAdapter := payback.NewAdapter(
		logg.Desugar(),
		payback.NewClient(logg.Desugar(), rateMgr),
		pbCfg,
	)

	// --- Engine ---
	eng := engine.New(logg.Desugar(), dcAdapter, pbAdapter)

	// --- Activation runner ---
	runner := jobs.NewRunner(
		logg.Desugar(),
		eng,
		accountStore,
		st,
		pub,
		cfg.ActivationInterval,
		cfg.FirstRunDelay,
	)
	go runner.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewHandler(logg.Desugar(), runner, st, accountStore)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[loyalty-engine] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"activation_interval", cfg.ActivationInterval)

	<-ctx.Done()
	logg.Info("shutting down [loyalty-engine]...")

	runner.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
	if err := accountStore.Close(); err != nil {
		logg.Warnw("accounts.close_failed", "error", err)
	}
	logger.Sync()
}

// resolveProviderConfigs resolves both provider configs from AWS Secrets Manager,
// falling back to environment configuration when the backend or the individual
// secret is unavailable.
func resolveProviderConfigs(ctx context.Context, cfg *config.Config) (deutschlandcard.Config, payback.Config) {
	logg := logger.S()

	dcCfg := deutschlandcard.Config{
		BaseURL:  cfg.DCBaseURL,
		APIToken: cfg.DCAPIToken,
	}
	pbCfg := payback.Config{
		BaseURL:    cfg.PaybackBaseURL,
		Principal:  cfg.PaybackPrincipal,
		AuthUser:   cfg.PaybackAuthUsername,
		Credential: cfg.PaybackAuthCredential,
	}

	awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
	if err != nil {
		logg.Warnw("AWS Secrets Manager unavailable, using env provider config", "error", err)
		return dcCfg, pbCfg
	}

	dcResolver := internalsecrets.NewResolver(
		logg.Desugar(), cfg.Env, "deutschlandcard", awsProvider,
		secrets.NewCache[deutschlandcard.Config](cfg.CacheTTL),
	)
	if resolved, err := dcResolver.Resolve(ctx, parseDCSecret); err != nil {
		logg.Warnw("deutschlandcard secret unavailable, using env config", "error", err)
	} else {
		dcCfg = resolved
	}

	pbResolver := internalsecrets.NewResolver(
		logg.Desugar(), cfg.Env, "payback", awsProvider,
		secrets.NewCache[payback.Config](cfg.CacheTTL),
	)
	if resolved, err := pbResolver.Resolve(ctx, parsePaybackSecret); err != nil {
		logg.Warnw("payback secret unavailable, using env config", "error", err)
	} else {
		pbCfg = resolved
	}

	return dcCfg, pbCfg
}

func parseDCSecret(m map[string]string) (deutschlandcard.Config, error) {
	c := deutschlandcard.Config{
		BaseURL:  m["base_url"],
		APIToken: m["api_token"],
	}
	if c.BaseURL == "" || c.APIToken == "" {
		return c, errors.New("secret missing base_url or api_token")
	}
	return c, nil
}

func parsePaybackSecret(m map[string]string) (payback.Config, error) {
	c := payback.Config{
		BaseURL:    m["base_url"],
		Principal:  m["principal"],
		AuthUser:   m["basic_auth_username"],
		Credential: m["basic_auth_credential"],
	}
	if c.BaseURL == "" || c.Principal == "" || c.AuthUser == "" || c.Credential == "" {
		return c, errors.New("secret missing base_url, principal or basic auth fields")
	}
	return c, nil
}
