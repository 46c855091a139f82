package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-proposals/internal/auth"
	"github.com/noah-isme/backend-proposals/internal/client"
	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/config"
	"github.com/noah-isme/backend-proposals/internal/estimate"
	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/health"
	"github.com/noah-isme/backend-proposals/internal/lock"
	"github.com/noah-isme/backend-proposals/internal/notify"
	"github.com/noah-isme/backend-proposals/internal/obs"
	"github.com/noah-isme/backend-proposals/internal/payment"
	"github.com/noah-isme/backend-proposals/internal/proposal"
	"github.com/noah-isme/backend-proposals/internal/ratelimit"
	"github.com/noah-isme/backend-proposals/internal/repo"
	"github.com/noah-isme/backend-proposals/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "proposals")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "proposals-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runMigrations(cfg); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "proposals-api"
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()

	tenants := repo.TenantsRepo{Pool: pool}
	clients := repo.ClientsRepo{Pool: pool}
	estimates := repo.EstimatesRepo{Pool: pool}
	proposals := repo.ProposalsRepo{Pool: pool}
	payments := repo.PaymentsRepo{Pool: pool}
	eventStore := repo.EventsRepo{Pool: pool}

	emailTopics := make(map[string]bool, len(events.DefaultTopics()))
	for _, topic := range events.DefaultTopics() {
		emailTopics[topic] = envBool("NOTIFY_TOPIC_"+topicEnvSuffix(topic), true)
	}
	emailNotifier := notify.EmailNotifier{
		Tasks:        taskClient,
		Clients:      clients,
		Enabled:      cfg.NotifyEmailEnabled,
		TopicToggles: emailTopics,
	}
	bus := &events.Bus{
		Store:     eventStore,
		Notifiers: []events.Notifier{emailNotifier},
	}

	verifier, err := auth.NewVerifier(cfg.SupabaseJWTSecret, cfg.SupabaseIssuer, cfg.SupabaseAudience, cfg.AuthClockSkew)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier}

	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, cfg.DefaultTenant)

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.TenantIPKey,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

	estimateSvc := &estimate.Service{
		Repo:     estimates,
		Clients:  clients,
		MaxItems: cfg.EstimateMaxItems,
	}
	estimateHandler := &estimate.Handler{
		Svc:       estimateSvc,
		Validate:  validate,
		PageLimit: cfg.EstimatePageLimit,
		MaxLimit:  200,
	}

	clientHandler := &client.Handler{
		Repo:      clients,
		Validate:  validate,
		PageLimit: cfg.EstimatePageLimit,
		MaxLimit:  200,
	}

	proposalSvc := &proposal.Service{
		Repo:      proposals,
		Estimates: estimates,
		Tenants:   tenants,
		Bus:       bus,
		Locker:    lock.Locker{R: redisClient},
		LockTTL:   cfg.GenerateLockTTL,
		Cache:     proposal.NewCache(redisClient, cfg.ProposalCacheTTL),
	}
	proposalHandler := &proposal.Handler{Svc: proposalSvc, Validate: validate}

	provider := payment.Stripe{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
	}
	paymentSvc := &payment.Service{
		Provider:    provider,
		Payments:    payments,
		Proposals:   proposals,
		Tenants:     tenants,
		Bus:         bus,
		Currency:    envOrDefault("CURRENCY_CODE", "usd"),
		CheckoutTTL: cfg.CheckoutTTL,
		SuccessURL:  cfg.PublicBaseURL,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.TenantHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		// Provider notifications authenticate via signature, not JWT.
		v.Post("/webhooks/payment/{provider}", paymentHandler.Webhook)

		v.Group(func(t chi.Router) {
			t.Use(resolver.Middleware)
			t.Use(resolveTenantID(tenants, cfg.TenantHeader))
			t.Use(limiter.Middleware)
			t.Use(authMiddleware.RequireAuth)

			t.Route("/clients", func(c chi.Router) {
				c.Get("/", clientHandler.List)
				c.Post("/", clientHandler.Create)
				c.Get("/{id}", clientHandler.Get)
			})

			t.Route("/estimates", func(e chi.Router) {
				e.Get("/", estimateHandler.List)
				e.Get("/{id}", estimateHandler.Get)
				e.Patch("/{id}", estimateHandler.Update)
				e.Group(func(g chi.Router) {
					g.Use(idem.Middleware)
					g.Post("/", estimateHandler.Create)
					g.Post("/{id}/proposal", proposalHandler.Generate)
				})
			})

			t.Route("/proposals", func(p chi.Router) {
				p.Get("/{id}", proposalHandler.Get)
				p.Post("/{id}/deposit/preview", proposalHandler.PreviewDeposit)
				p.Group(func(g chi.Router) {
					g.Use(idem.Middleware)
					g.Put("/{id}/deposit", proposalHandler.SetDeposit)
					g.Post("/{id}/send", proposalHandler.Send)
					g.Post("/{id}/checkout", paymentHandler.CreateCheckout)
				})
			})

			t.Get("/billing/fee-preview", paymentHandler.FeePreview)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.MigrationsDir, migrateURL(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// migrateURL rewrites the connection scheme for the pgx/v5 migrate driver.
func migrateURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://")
	}
	if strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	return databaseURL
}

// resolveTenantID rewrites slug-based tenant context to the workspace UUID
// the repositories expect.
func resolveTenantID(tenants repo.TenantsRepo, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slugOrID, ok := tenant.From(r.Context())
			if !ok {
				common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "workspace not specified; set "+header+" or use your workspace subdomain", nil)
				return
			}
			if _, err := uuid.Parse(slugOrID); err == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := tenants.IDBySlug(r.Context(), slugOrID)
			if err != nil {
				common.JSONError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "unknown workspace", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.With(r.Context(), id)))
		})
	}
}

// topicEnvSuffix turns "deposit.paid" into "DEPOSIT_PAID" for per-topic
// notification toggles.
func topicEnvSuffix(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
