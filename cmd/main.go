package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-service/internal/auth"
	"crm-service/internal/event"
	"crm-service/internal/handler"
	"crm-service/internal/lead"
	custommiddleware "crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/notify"
	"crm-service/internal/repository"
	"crm-service/internal/store"
	"crm-service/internal/user"
	"crm-service/internal/view"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("crm-service")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting CRM service...", cfg.LogConfig()...)

	// Redis backs the watch bridge and the stream notifier
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("Redis unreachable, live views and stream notifications disabled", zap.Error(err))
			redisClient = nil
		}
	}

	// Document store: postgres when the DB is enabled, in-memory fallback for
	// local development so the service still serves requests without one.
	var docStore store.Store
	if cfg.DB.Enabled {
		if err := database.InitDB(cfg); err != nil {
			log.Fatal("Failed to initialize database", zap.Error(err))
		}
		gs, err := store.NewGormStore(database.GetDB(), redisClient, log)
		if err != nil {
			log.Fatal("Failed to initialize document store", zap.Error(err))
		}
		docStore = gs
		log.Info("Database connection established")
	} else {
		docStore = store.NewMemStore()
		log.Warn("DB disabled, using in-memory document store")
	}

	repo := repository.New(docStore, log)

	// Notification sinks are fire-and-forget; the log sink always runs
	notifier := notify.Multi{notify.NewLogNotifier(log)}
	if redisClient != nil && cfg.Notify.Stream != "" {
		notifier = append(notifier, notify.NewStreamNotifier(redisClient, cfg.Notify.Stream, cfg.Notify.Timeout, log))
	}
	if cfg.Notify.WebhookURL != "" {
		notifier = append(notifier, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, log))
	}

	jwt := jwtutil.NewJWTUtil(&cfg.JWT)
	resolver := auth.NewResolver(auth.NewJWTIdentityProvider(jwt))

	leadManager := lead.NewManager(repo, notifier, log)
	eventManager := event.NewManager(repo, notifier, log)
	userManager := user.NewManager(repo, log)
	coordinator := view.NewCoordinator(repo, log)

	if cfg.Seed.Enabled {
		seedAdmin(repo, cfg, log)
	}

	authHandler := handler.NewAuthHandler(repo, jwt)
	leadHandler := handler.NewLeadHandler(leadManager)
	eventHandler := handler.NewEventHandler(eventManager)
	userHandler := handler.NewUserHandler(userManager)
	viewHandler := handler.NewViewHandler(coordinator)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(custommiddleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)
	e.POST("/auth/login", authHandler.Login)

	// API routes - all require a resolved principal
	api := e.Group("/api")
	api.Use(custommiddleware.BearerAuth(resolver))

	leads := api.Group("/leads")
	leads.POST("", leadHandler.Create)
	leads.GET("", leadHandler.List)
	leads.GET("/watch", viewHandler.WatchLeads)
	leads.POST("/:id/assign", leadHandler.Assign)
	leads.POST("/:id/transition", leadHandler.Transition)
	leads.POST("/:id/reopen", leadHandler.Reopen)
	leads.DELETE("/:id", leadHandler.Delete)

	events := api.Group("/events")
	events.POST("", eventHandler.Create)
	events.GET("", eventHandler.List)
	events.GET("/watch", viewHandler.WatchEvents)
	events.POST("/:id/volunteers", eventHandler.AssignVolunteer)
	events.DELETE("/:id/volunteers/:userId", eventHandler.UnassignVolunteer)
	events.POST("/:id/officer", eventHandler.AssignOfficer)
	events.POST("/:id/complete", eventHandler.Complete)
	events.POST("/:id/cancel", eventHandler.Cancel)

	users := api.Group("/users")
	users.POST("", userHandler.Create)
	users.GET("", userHandler.List)
	users.PATCH("/:id/role", userHandler.ChangeRole)
	users.POST("/:id/deactivate", userHandler.Deactivate)

	// Start server
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// seedAdmin bootstraps a tenant and admin account so a fresh deployment has a
// usable login. Idempotent: existing records are left alone.
func seedAdmin(repo *repository.Repository, cfg *config.Config, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const seedTenantID = "00000000-0000-0000-0000-000000000001"

	if _, err := repo.Tenants().Get(ctx, seedTenantID); errors.Is(err, model.ErrNotFound) {
		_, err := repo.Tenants().Insert(ctx, model.Tenant{
			ID:               seedTenantID,
			Name:             cfg.Seed.TenantName,
			SubscriptionTier: "standard",
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			log.Warn("Failed to seed tenant", zap.Error(err))
			return
		}
		log.Info("Seeded tenant", zap.String("tenant_id", seedTenantID), zap.String("name", cfg.Seed.TenantName))
	}

	users := repo.Users(seedTenantID)
	if _, err := users.FindByEmail(ctx, cfg.Seed.AdminEmail); err == nil {
		return
	} else if !errors.Is(err, model.ErrNotFound) {
		log.Warn("Failed to check seed admin", zap.Error(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Seed.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Warn("Failed to hash seed admin password", zap.Error(err))
		return
	}
	now := time.Now().UTC()
	admin := model.User{
		ID:           uuid.New().String(),
		TenantID:     seedTenantID,
		Name:         "Administrator",
		Email:        cfg.Seed.AdminEmail,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		Status:       model.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := users.Insert(ctx, admin); err != nil {
		log.Warn("Failed to seed admin user", zap.Error(err))
		return
	}
	log.Info("Seeded admin user",
		zap.String("tenant_id", seedTenantID),
		zap.String("email", cfg.Seed.AdminEmail))
}
