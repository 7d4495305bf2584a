package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drs-api/internal/application/notification"
	"github.com/drs-api/internal/config"
	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/drs-api/internal/infrastructure/jwt"
	"github.com/drs-api/internal/infrastructure/metrics"
	"github.com/drs-api/internal/infrastructure/smtp"
	"github.com/drs-api/internal/infrastructure/sns"
	"github.com/drs-api/internal/pkg/logger"
	"github.com/drs-api/internal/pkg/otp"
	"github.com/drs-api/internal/pkg/password"
	"github.com/drs-api/internal/pkg/ratelimit"
	transporthttp "github.com/drs-api/internal/transport/http"
	"github.com/drs-api/internal/transport/http/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type limiter interface {
	Allow(key string) bool
	io.Closer
}

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if envErr != nil {
		log.Info().Msg("no .env file found, reading from environment")
	}

	ctx := context.Background()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load aws config")
	}
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, log)

	admins := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Admins, cfg.DynamoTables.AccountKeys, domain.KindAdmin)
	doctors := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Doctors, cfg.DynamoTables.AccountKeys, domain.KindDoctor)
	contacts := dynamo.NewContactRepo(dynamoClient, cfg.DynamoTables.ContactMessages)

	var smsSender sns.SMSSender
	if cfg.SMSEnabled {
		smsSender = sns.NewSender(awsCfg, cfg)
	}
	notifier := notification.NewAsync(
		notification.NewDispatcher(smtp.NewMailer(cfg), smsSender),
		cfg.NotifyQueue,
		log.With().Str("component", "notifier").Logger(),
	)

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt provider")
	}
	hasher := password.NewHasher(cfg.BcryptCost)

	if err := seedAdmin(ctx, cfg, admins, hasher, time.Now, log); err != nil {
		log.Fatal().Err(err).Msg("seed admin")
	}

	authLimiter, contactLimiter, closeBackend := newLimiters(cfg, log)
	ips, err := middleware.NewIPResolver(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("trusted proxies")
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Admins:         admins,
		Doctors:        doctors,
		Contacts:       contacts,
		Tokens:         tokens,
		Hasher:         hasher,
		OTP:            otp.NewGenerator(cfg.OTPLength, ""),
		Notifier:       notifier,
		AuthLimiter:    authLimiter,
		ContactLimiter: contactLimiter,
		IPs:            ips,
		Metrics:        metrics.New(),
		Log:            log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.AppPort).Str("env", cfg.AppEnv).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue not drained")
	}
	for _, c := range []io.Closer{authLimiter, contactLimiter, closeBackend} {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close limiter")
		}
	}
	log.Info().Msg("server stopped")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newLimiters builds the auth and contact limiters on the configured backend.
// The returned closer releases the shared backend.
func newLimiters(cfg *config.Config, log zerolog.Logger) (auth, contact limiter, backend io.Closer) {
	authCfg := ratelimit.Config{Window: cfg.AuthRateWindow, Max: cfg.AuthRateLimit}
	contactCfg := ratelimit.Config{Window: cfg.ContactRateWindow, Max: cfg.ContactRateLimit}

	if cfg.RateLimitBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		rlLog := log.With().Str("component", "ratelimit").Logger()
		return ratelimit.NewRedisLimiter(client, authCfg, "rl:auth", rlLog),
			ratelimit.NewRedisLimiter(client, contactCfg, "rl:contact", rlLog),
			client
	}
	return ratelimit.New(authCfg), ratelimit.New(contactCfg), closerFunc(func() error { return nil })
}
