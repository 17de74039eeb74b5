package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/featureflags"
	"github.com/aryan0dhankhar/bizdesk/internal/handler"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/supabase"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/bizdesk/internal/repository"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
	"github.com/aryan0dhankhar/bizdesk/internal/security/audit"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/bizdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
	"github.com/aryan0dhankhar/bizdesk/internal/worker"
	"github.com/aryan0dhankhar/bizdesk/pkg/config"
	"github.com/aryan0dhankhar/bizdesk/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting bizdesk server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "bizdesk", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Apply migrations and open the Postgres pool
	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.DatabaseURL, "up"); err != nil {
			log.Error("failed to apply migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("migrations applied")
	}
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.RegisterMetrics(prometheus.DefaultRegisterer, "bizdesk"); err != nil {
		log.Warn("failed to register database pool metrics", slog.String("error", err.Error()))
	}
	db := pool.DB()

	// 5. Initialize Redis client
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 6. Initialize Supabase auth and storage
	supabaseCfg := supabase.Config{
		URL:            cfg.SupabaseURL,
		AnonKey:        cfg.SupabaseAnonKey,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.StorageBucket,
	}
	identity, err := supabase.NewAuth(supabaseCfg, log)
	if err != nil {
		log.Error("failed to initialize Supabase auth", slog.String("error", err.Error()))
		os.Exit(1)
	}
	storage, err := supabase.NewStorage(supabaseCfg, log)
	if err != nil {
		log.Error("failed to initialize Supabase storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Initialize repositories
	orgRepo := repository.NewPostgresOrganizationRepository(db, log)
	memberRepo := repository.NewPostgresMembershipRepository(db, log)
	userRepo := repository.NewPostgresUserRepository(db, log)
	invitationRepo := repository.NewPostgresInvitationRepository(db, log)
	checkoutRepo := repository.NewPostgresCheckoutRepository(db, log)
	clientRepo := repository.NewPostgresClientRepository(db, log)
	invoiceRepo := repository.NewPostgresInvoiceRepository(db, log)
	contractRepo := repository.NewPostgresContractRepository(db, log)
	expenseRepo := repository.NewPostgresExpenseRepository(db, log)
	attachmentRepo := repository.NewPostgresAttachmentRepository(db, log)
	auditRepo := repository.NewPostgresAuditRepository(db, log)
	analyticsRepo := repository.NewPostgresAnalyticsRepository(db, log)
	dashboardCache := repository.NewDashboardCache(redisClient, cfg.DashboardCacheTTL, log)

	// 8. Initialize security components
	tokenManager := auth.NewTokenManager(cfg.SupabaseJWTSecret, cfg.SupabaseURL+"/auth/v1")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Error("invalid TRUSTED_PROXIES", slog.String("error", err.Error()))
		os.Exit(1)
	}
	auditLogger := audit.NewLogger(auditRepo, log)
	resolver := middleware.NewMembershipResolver(memberRepo, cfg.MembershipCacheTTL, auditLogger, log)
	flags := featureflags.New(cfg.FeatureFlags)

	// 9. Initialize services
	publisher := events.NewPublisher(redisClient, dashboardCache, log)
	common := service.Common{
		Orgs:   orgRepo,
		Authz:  security.NewAuthorizationService(log),
		Audit:  auditLogger,
		Events: publisher,
		Logger: log,
	}
	authService := service.NewAuthService(identity, userRepo, orgRepo, tokenManager, flags, log)
	orgService := service.NewOrganizationService(common, cfg.TrialDays, resolver)
	memberService := service.NewMemberService(common, memberRepo, invitationRepo, userRepo, cfg.Plans, cfg.InvitationTTL, resolver)
	subscriptionService := service.NewSubscriptionService(common, checkoutRepo, memberRepo, invitationRepo,
		cfg.Plans, cfg.BillingCheckoutURL, cfg.BillingWebhookSecret)
	clientService := service.NewClientService(common, clientRepo)
	invoiceService := service.NewInvoiceService(common, invoiceRepo, clientRepo)
	contractService := service.NewContractService(common, contractRepo, clientRepo)
	expenseService := service.NewExpenseService(common, expenseRepo)
	maxUpload := int64(cfg.MaxUploadMB) << 20
	attachmentService := service.NewAttachmentService(common, attachmentRepo, storage,
		clientRepo, invoiceRepo, contractRepo, expenseRepo, service.AttachmentLimits{
			MaxBytes:     maxUpload,
			AllowedTypes: cfg.AllowedUploadTypes,
			SignedURLTTL: cfg.SignedURLTTL,
		})
	dashboardService := service.NewDashboardService(common, analyticsRepo, clientRepo, contractRepo, dashboardCache)
	auditService := service.NewAuditService(common)

	// 10. Initialize handlers and routes
	handlers := &handler.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"postgres": pool.Health,
			"redis":    redisClient.Ping,
		}, log),
		Auth:          handler.NewAuthHandler(authService, log),
		Organizations: handler.NewOrganizationHandler(orgService, log),
		Members:       handler.NewMemberHandler(memberService, log),
		Subscriptions: handler.NewSubscriptionHandler(subscriptionService, log),
		Clients:       handler.NewClientHandler(clientService, log),
		Invoices:      handler.NewInvoiceHandler(invoiceService, log),
		Contracts:     handler.NewContractHandler(contractService, log),
		Expenses:      handler.NewExpenseHandler(expenseService, log),
		Attachments:   handler.NewAttachmentHandler(attachmentService, maxUpload, log),
		Dashboard:     handler.NewDashboardHandler(dashboardService, auditService, log),
		Events:        handler.NewEventsHandler(publisher, cfg.CORSAllowedOrigins, log),
		Plans:         handler.NewPlansHandler(cfg.Plans, log),
		Metrics:       promhttp.Handler(),
	}
	mux := handlers.Routes(resolver.RequireMembership)

	// Chain middleware: request ID -> metrics -> CORS -> JWT -> rate limit -> validation
	rootHandler := tracing.Handler(middleware.Chain(metrics.RecordRoute(mux),
		middleware.RequestID(log),
		metrics.HTTPMetricsMiddleware,
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.JWTMiddleware(tokenManager, log),
		middleware.RateLimitMiddleware(rateLimiter, cfg.AuthRateLimitPerMinute, proxies, log),
		middleware.ValidateJSONContentType(log),
		middleware.SanitizeInputs(log),
	), "bizdesk")

	// 11. Start the sweeper in background
	sweeper := worker.NewSweeper([]worker.Sweep{
		{Name: "invoices.overdue", Run: invoiceService.MarkOverdue},
		{Name: "contracts.expired", Run: contractService.ExpireEnded},
		{Name: "subscriptions.period", Run: subscriptionService.Sweep},
		{Name: "invitations.expired", Run: memberService.ExpireInvitations},
		{Name: "checkouts.expired", Run: subscriptionService.ExpireCheckouts},
		{Name: "membership_cache.prune", Run: worker.Pruner(resolver.Prune)},
	}, cfg.WorkerInterval, log)
	go sweeper.Start(ctx)

	// 12. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           rootHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Float64("rate_limit_rps", cfg.RateLimitRPS),
		slog.Int("rate_limit_burst", cfg.RateLimitBurst),
		slog.Duration("worker_interval", cfg.WorkerInterval),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server error", slog.String("error", err.Error()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop sweeper
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
