// Command userauthd serves identity provider session verification, the
// identity provider webhook and local email/password accounts.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	authgin "github.com/PaulFidika/userauth/adapters/gin"
	"github.com/PaulFidika/userauth/adapters/gin/handlers"
	"github.com/PaulFidika/userauth/adapters/ginutil"
	"github.com/PaulFidika/userauth/config"
	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/emailqueue"
	"github.com/PaulFidika/userauth/identity"
	jwtkit "github.com/PaulFidika/userauth/jwt"
	"github.com/PaulFidika/userauth/keyset"
	"github.com/PaulFidika/userauth/logging"
	migrations "github.com/PaulFidika/userauth/migrations/postgres"
	oidckit "github.com/PaulFidika/userauth/oidc"
	memorylimiter "github.com/PaulFidika/userauth/ratelimit/memory"
	redislimiter "github.com/PaulFidika/userauth/ratelimit/redis"
	"github.com/PaulFidika/userauth/session"
	memorystore "github.com/PaulFidika/userauth/storage/memory"
	redisstore "github.com/PaulFidika/userauth/storage/redis"
	"github.com/PaulFidika/userauth/webhook"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("userauthd: invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("userauthd: exited")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	sqldb := stdlib.OpenDBFromPool(pool)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()
	if err := migrations.Run(ctx, db, log); err != nil {
		return err
	}
	if err := emailqueue.Migrate(ctx, pool); err != nil {
		return err
	}

	jobs, err := emailqueue.NewClient(pool, emailqueue.ClientConfig{
		MaxWorkers: cfg.EmailMaxWorkers,
		Sender:     emailqueue.LogSender{Log: log},
	})
	if err != nil {
		return err
	}
	if err := jobs.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := jobs.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("userauthd: river stop")
		}
	}()

	var (
		deliveries webhook.Ledger
		refreshes  core.TokenLedger
		limiter    ginutil.RateLimiter
		memLimiter *memorylimiter.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		deliveries = redisstore.NewLedger(rdb, redisstore.PrefixWebhookDelivery)
		refreshes = redisstore.NewLedger(rdb, redisstore.PrefixRefreshUsed)
		limiter = redislimiter.New(rdb, nil)
	} else {
		log.Warn("userauthd: REDIS_ADDR unset, using in-process ledgers and rate limits")
		dl, rl := memorystore.NewLedger(), memorystore.NewLedger()
		defer dl.Close()
		defer rl.Close()
		deliveries, refreshes = dl, rl
		memLimiter = memorylimiter.New(nil)
		limiter = memLimiter
	}

	store := identity.NewPGStore(pool, "")
	reconciler := identity.NewReconciler(store, identity.WithLogger(log))

	keys := keyset.New(cfg.ClerkFrontendAPI, keyset.WithTimeout(cfg.JWKSTimeout), keyset.WithLogger(log))
	vcfg := oidckit.ConfigForDomain(cfg.ClerkFrontendAPI)
	if cfg.ClerkIssuer != "" {
		vcfg.Issuer = cfg.ClerkIssuer
	}
	if cfg.ClerkAudience != "" {
		vcfg.Audience = cfg.ClerkAudience
	}
	vcfg.AuthorizedParties = cfg.ClerkAuthorizedParties
	vcfg.Leeway = cfg.TokenLeeway
	boundary := session.NewBoundary(oidckit.NewTokenVerifier(keys, vcfg), reconciler,
		session.WithCookieNames(cfg.ClerkCookieNames...), session.WithLogger(log))

	var processor *webhook.Processor
	if cfg.ClerkWebhookSecret != "" {
		processor = webhook.NewProcessor(
			webhook.Authenticator{StrictTimestamp: cfg.ClerkWebhookStrictTS},
			cfg.ClerkWebhookSecret, reconciler,
			webhook.WithLedger(deliveries),
			webhook.WithDeliveryTTL(cfg.WebhookDeliveryTTL),
			webhook.WithLogger(log),
		)
	} else {
		log.Warn("userauthd: CLERK_WEBHOOK_SECRET unset, webhook route disabled")
	}

	signing, err := jwtkit.NewAutoKeySource(jwtkit.KeyConfig{
		KeyID:          cfg.SigningKeyID,
		PrivateKeyPEM:  cfg.SigningKeyPEM,
		PublicKeysJSON: cfg.PublicKeysJSON,
		DevKeysDir:     cfg.DevKeysDir,
		Production:     cfg.Production(),
		Logger:         log,
	})
	if err != nil {
		return err
	}
	svc, err := core.NewService(core.Config{
		Issuer:     cfg.TokenIssuer,
		Keys:       signing,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		OTPTTL:     cfg.OTPTTL,
	}, store,
		core.WithEmailQueue(emailqueue.NewQueue(jobs)),
		core.WithTokenLedger(refreshes),
		core.WithLogger(log),
	)
	if err != nil {
		return err
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.OTPSweepSpec, func() {
		if _, err := svc.SweepExpiredOTPs(ctx); err != nil {
			log.WithError(err).Warn("userauthd: otp sweep failed")
		}
		if memLimiter != nil {
			memLimiter.Sweep()
		}
	}); err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	authgin.Register(r, authgin.Deps{
		Boundary: boundary,
		Webhooks: processor,
		Local:    svc,
		Limiter:  limiter,
		Cookies: handlers.CookieConfig{
			AccessName:  cfg.AccessCookie,
			RefreshName: cfg.RefreshCookie,
			Domain:      cfg.CookieDomain,
			Secure:      cfg.CookieSecure,
		},
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("userauthd: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("userauthd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
