package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/datanexus/internal/cart"
	"github.com/noah-isme/datanexus/internal/checkout"
	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/earnings"
	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/health"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/lock"
	"github.com/noah-isme/datanexus/internal/notify"
	"github.com/noah-isme/datanexus/internal/obs"
	"github.com/noah-isme/datanexus/internal/profile"
	"github.com/noah-isme/datanexus/internal/ratelimit"
	"github.com/noah-isme/datanexus/internal/resilience"
	"github.com/noah-isme/datanexus/internal/security"
	"github.com/noah-isme/datanexus/internal/settlement"
	"github.com/noah-isme/datanexus/internal/submission"
)

// Services holds the domain services built for a router.
type Services struct {
	Bus        *events.Bus
	Settlement *settlement.Service
	Cart       *cart.Service
	Checkout   *checkout.Service
	Submission *submission.Service
	Earnings   *earnings.Service
}

// NewServices wires the domain services over the dependencies.
func NewServices(d Dependencies) *Services {
	cfg := d.Config
	logger := d.Logger

	earningsSvc := &earnings.Service{
		Store:      d.Store,
		R:          cmdable(d.Redis),
		TTL:        cfg.EarningsCacheTTL,
		Share:      cfg.EarningsContributorShare,
		WindowDays: cfg.EarningsWindowDays,
		Logger:     &logger,
	}
	notifiers := []events.Notifier{earningsSvc}
	if d.TaskClient != nil {
		notifiers = append(notifiers, notify.SaleNotifier{
			Queue:     d.TaskClient,
			QueueName: cfg.WorkerQueue,
			MaxRetry:  cfg.TaskMaxRetry,
			Logger:    &logger,
		})
	}
	bus := &events.Bus{Store: d.Store, Notifiers: notifiers}

	settleSvc := &settlement.Service{
		Store:  d.Store,
		Events: bus,
		Config: settlement.Config{
			UnitPrice:      cfg.SettlementUnitPrice,
			BatchSize:      cfg.SettlementBatchSize,
			ReservationTTL: cfg.SettlementReservationTTL,
			MaxAttempts:    cfg.SettlementMaxAttempts,
		},
		Logger: &logger,
	}
	cartSvc := &cart.Service{Store: d.Store, MaxRetries: cfg.CartMaxRetries}

	var guard lock.Guard = lock.NewLocal()
	if d.Redis != nil {
		guard = lock.Locker{R: d.Redis, RetryBackoff: cfg.LockRetryBackoff}
	}
	checkoutSvc := &checkout.Service{
		Carts:   cartSvc,
		Settle:  settleSvc,
		Lock:    guard,
		LockTTL: cfg.CheckoutLockTTL,
		Logger:  &logger,
	}

	return &Services{
		Bus:        bus,
		Settlement: settleSvc,
		Cart:       cartSvc,
		Checkout:   checkoutSvc,
		Submission: &submission.Service{Store: d.Store, Events: bus, Logger: &logger},
		Earnings:   earningsSvc,
	}
}

// NewRouter builds the HTTP surface.
func NewRouter(d Dependencies) (http.Handler, error) {
	cfg := d.Config
	svcs := NewServices(d)
	validate := validator.New()

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, registerer)
		resilience.MustRegisterMetrics(cfg.MetricsNamespace, registerer)
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), registerer)
	}

	purchaseLimiter, err := NewLimiter(d.Redis, cfg.RateLimitPurchase)
	if err != nil {
		return nil, err
	}
	limit := ratelimit.Handler{
		Limiter: purchaseLimiter,
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate_limiter_unavailable") },
	}.Middleware

	resolver := identity.NewResolver(cfg.AgencyHeader, cfg.ContributorHeader)
	idem := common.Idem{
		R:      cmdable(d.Redis),
		TTL:    cfg.IdempotencyTTL,
		Scopes: []string{resolver.AgencyHeader, resolver.ContributorHeader},
	}

	settleHandler := &settlement.Handler{Svc: svcs.Settlement, Reader: d.Store, Validate: validate}
	cartHandler := &cart.Handler{Svc: svcs.Cart, Validate: validate}
	checkoutHandler := &checkout.Handler{Svc: svcs.Checkout}
	submissionHandler := &submission.Handler{Svc: svcs.Submission, Validate: validate}
	earningsHandler := &earnings.Handler{Svc: svcs.Earnings}
	profileHandler := &profile.Handler{Store: d.Store, Validate: validate}

	probes := []health.Probe{{Name: "store", Target: d.Store, Timeout: cfg.HealthDBTimeout}}
	if d.Redis != nil {
		probes = append(probes, health.Probe{
			Name:    "redis",
			Target:  health.PingFunc(func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }),
			Timeout: cfg.HealthRedisTimeout,
		})
	}
	healthHandler := health.Handler{Probes: probes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(resolver.Middleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.IdempotencyHeader, resolver.AgencyHeader, resolver.ContributorHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(ag chi.Router) {
			ag.Use(identity.RequireAgency)
			ag.Get("/categories", settleHandler.Categories)
			ag.Get("/cart", cartHandler.Get)
			ag.Get("/agency/purchases", settleHandler.ListPurchases)
			ag.Get("/agency/profile", profileHandler.GetAgency)
			ag.Put("/agency/profile", profileHandler.PutAgency)
			ag.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/cart/lines", cartHandler.AddLine)
				g.Delete("/cart/lines/{ref}", cartHandler.RemoveLine)
				g.Delete("/cart", cartHandler.Clear)
				g.With(limit).Post("/checkout", checkoutHandler.Checkout)
				g.With(limit).Post("/purchases", settleHandler.Purchase)
			})
		})

		v.Group(func(c chi.Router) {
			c.Use(identity.RequireContributor)
			c.Get("/submissions", submissionHandler.List)
			c.With(idem.Middleware).Post("/submissions", submissionHandler.Create)
			c.Get("/submissions/{id}", submissionHandler.Get)
			c.Delete("/submissions/{id}", submissionHandler.Delete)
			c.Get("/earnings", earningsHandler.Get)
			c.Get("/contributor/profile", profileHandler.GetContributor)
			c.Put("/contributor/profile", profileHandler.PutContributor)
		})
	})

	return r, nil
}

// NewMailer returns the sender used for sale notifications, behind a breaker.
func NewMailer(d Dependencies) common.EmailSender {
	cfg := d.Config
	var next common.EmailSender = d.Mailer
	if next == nil {
		next = common.LogEmailSender{Logger: d.Logger, From: cfg.NotifyEmailFrom}
	}
	breaker := resilience.NewBreaker(cfg.MailBreakerMinReq, cfg.MailBreakerRatio, cfg.MailBreakerOpenFor).
		WithTarget("mail").
		WithLogger(d.Logger)
	return resilience.GuardedSender{Next: next, Breaker: breaker}
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ShutdownGrace is how long servers wait for in-flight requests.
const ShutdownGrace = 10 * time.Second
