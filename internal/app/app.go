// Package app assembles the securekyc HTTP service from configuration. It
// picks storage backends, builds the services and mounts their handlers.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"securekyc/internal/admin"
	authhandler "securekyc/internal/auth/handler"
	authservice "securekyc/internal/auth/service"
	userstore "securekyc/internal/auth/store/user"
	jwttoken "securekyc/internal/jwt_token"
	"securekyc/internal/kyc/districts"
	kychandler "securekyc/internal/kyc/handler"
	kycmetrics "securekyc/internal/kyc/metrics"
	"securekyc/internal/kyc/notify"
	"securekyc/internal/kyc/rules"
	kycservice "securekyc/internal/kyc/service"
	kycstore "securekyc/internal/kyc/store"
	"securekyc/internal/platform/config"
	"securekyc/internal/platform/metrics"
	"securekyc/internal/platform/postgres"
	redisclient "securekyc/internal/platform/redis"
	ratelimitmw "securekyc/internal/ratelimit/middleware"
	ratelimitmodels "securekyc/internal/ratelimit/models"
	"securekyc/internal/ratelimit/store/bucket"
	"securekyc/pkg/platform/audit"
	"securekyc/pkg/platform/audit/publisher"
	auditmemory "securekyc/pkg/platform/audit/store/memory"
	auditpostgres "securekyc/pkg/platform/audit/store/postgres"
	"securekyc/pkg/platform/httputil"
	"securekyc/pkg/platform/middleware/metadata"
	"securekyc/pkg/platform/middleware/request"
	"securekyc/pkg/platform/middleware/requesttime"
)

const kafkaConnectTimeout = 10 * time.Second

// App is a wired service ready to be served.
type App struct {
	handler http.Handler
	closers []func()
}

type options struct {
	registerer prometheus.Registerer
	channels   []notify.Channel
}

// Option customises App construction.
type Option func(*options)

// WithRegisterer registers metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithChannels adds notification channels beyond the configured ones.
func WithChannels(channels ...notify.Channel) Option {
	return func(o *options) {
		o.channels = append(o.channels, channels...)
	}
}

type backends struct {
	users interface {
		authservice.UserStore
		kycstore.OwnerLookup
	}
	records kycservice.Store
	audit   audit.Store
	tx      kycservice.TxRunner
	buckets ratelimitmw.BucketStore
	health  func(ctx context.Context) error
}

// New builds the service described by cfg. Close releases everything New
// opened, including on the error path.
func New(ctx context.Context, cfg config.Server, log *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	table := districts.Default()
	if cfg.DistrictRiskFile != "" {
		if table, err = districts.Load(cfg.DistrictRiskFile); err != nil {
			return nil, err
		}
	}
	log.Info("district risk table loaded", "districts", table.Len())

	be, err := a.openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	auditPublisher := publisher.NewPublisher(be.audit,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	a.closers = append(a.closers, auditPublisher.Close)

	kycMetrics := kycmetrics.NewWithRegisterer(o.registerer)
	channels := append(a.configuredChannels(ctx, cfg.Notify, log), o.channels...)
	notifier := notify.NewMulti(channels, nil, notify.WithLogger(log), notify.WithMetrics(kycMetrics))

	svcOpts := []kycservice.Option{
		kycservice.WithLogger(log),
		kycservice.WithMetrics(kycMetrics),
		kycservice.WithAuditPublisher(auditPublisher),
		kycservice.WithNotifyTimeout(cfg.Notify.Timeout),
	}
	if notifier.Len() > 0 {
		svcOpts = append(svcOpts, kycservice.WithNotifier(notifier))
	}
	kycSvc := kycservice.New(be.records, be.tx, rules.NewEvaluator(table, rules.DefaultPrefixes()), svcOpts...)

	platformMetrics := metrics.NewWithRegisterer(o.registerer)
	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTokenTTL)
	authSvc, err := authservice.New(be.users, jwtSvc,
		authservice.WithLogger(log),
		authservice.WithMetrics(platformMetrics),
		authservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return nil, err
	}
	adminSvc, err := admin.NewService(be.records)
	if err != nil {
		return nil, err
	}

	limiter := ratelimitmw.New(be.buckets, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithPolicy(ratelimitmodels.ClassAuth, cfg.RateLimit.AuthPerWindow, cfg.RateLimit.Window),
		ratelimitmw.WithPolicy(ratelimitmodels.ClassKYC, cfg.RateLimit.KYCPerWindow, cfg.RateLimit.Window),
		ratelimitmw.WithMetrics(platformMetrics),
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/health", healthHandler(be.health))
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(limiter.RateLimit(ratelimitmodels.ClassAuth))
		authhandler.New(authSvc, log).Register(r)
	})
	kychandler.New(kycSvc, jwttoken.NewJWTServiceAdapter(jwtSvc), log).
		Register(r, limiter.RateLimitAuthenticated(ratelimitmodels.ClassKYC))
	admin.NewHandler(adminSvc, cfg.AdminAPIToken, log).Register(r)

	a.handler = r
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openBackends(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	be, err := a.openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return be, nil
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })
	be.buckets = bucket.NewRedisBucketStore(rc.Client)
	storeHealth := be.health
	be.health = func(ctx context.Context) error {
		if err := storeHealth(ctx); err != nil {
			return err
		}
		return rc.Health(ctx)
	}
	// Postgres serializes with advisory locks; shared memory stores need the redis lock.
	if cfg.DatabaseURL == "" {
		be.tx = kycstore.NewRedisLock(rc.Client, cfg.Redis.LockTTL, cfg.TxTimeout)
	}
	log.Info("using redis for user locks and rate limits")
	return be, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory stores")
		users := userstore.New()
		return &backends{
			users:   users,
			records: kycstore.NewInMemory(users),
			audit:   auditmemory.NewInMemoryStore(),
			tx:      kycservice.NewShardedTx(cfg.TxTimeout),
			buckets: bucket.NewInMemoryBucketStore(),
			health:  func(context.Context) error { return nil },
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := postgres.ApplySchema(ctx, db); err != nil {
		return nil, err
	}
	log.Info("using postgres stores")
	return &backends{
		users:   userstore.NewPostgres(db),
		records: kycstore.NewPostgres(db),
		audit:   auditpostgres.New(db),
		tx:      kycstore.NewPostgresTx(db, cfg.TxTimeout),
		buckets: bucket.NewInMemoryBucketStore(),
		health:  db.PingContext,
	}, nil
}

// configuredChannels enables each notification channel that has
// configuration. A Kafka channel that cannot connect is logged and left out.
func (a *App) configuredChannels(ctx context.Context, cfg config.NotifyConfig, log *slog.Logger) []notify.Channel {
	var channels []notify.Channel

	if ch := notify.NewEmailChannel(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}); ch != nil {
		channels = append(channels, ch)
	}

	kafkaCtx, cancel := context.WithTimeout(ctx, kafkaConnectTimeout)
	defer cancel()
	kafka, err := notify.NewKafkaChannel(kafkaCtx, cfg.KafkaBrokers, cfg.KafkaTopic)
	switch {
	case err != nil:
		log.Error("kafka notifications disabled", "error", err)
	case kafka != nil:
		channels = append(channels, kafka)
		a.closers = append(a.closers, kafka.Close)
	}
	return channels
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
