package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"crm-auth-service/internal/config"
	"crm-auth-service/internal/events"
	"crm-auth-service/internal/handlers"
	"crm-auth-service/internal/middleware"
	"crm-auth-service/internal/migration"
	"crm-auth-service/internal/repository"
	"crm-auth-service/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "release" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := migration.Run(db, logger); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// NATS audit stream is optional: without a URL the DB audit rows are the
	// only trail.
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize NATS publisher, continuing without event publishing")
		}
	} else {
		logger.Info("NATS_URL not set, event publishing disabled")
	}
	defer func() {
		if publisher != nil {
			publisher.Close()
		}
	}()

	// Repositories
	authRepo := repository.NewAuthRepository(db)
	clientRepo := repository.NewClientRepository(db)

	// Services
	jwtService, err := services.NewJWTService(cfg.JWT.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}
	passwordService := services.NewPasswordService()
	equalizer := services.NewEqualizer(time.Duration(cfg.Auth.MinResponseTimeMs) * time.Millisecond)
	emailService := services.NewEmailService(
		cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password,
		cfg.SMTP.FromEmail, cfg.SMTP.FromName, logger,
	)

	var audit services.AuditPublisher
	if publisher != nil {
		audit = publisher
	}

	authService := services.NewAuthService(authRepo, clientRepo, clientRepo,
		passwordService, jwtService, equalizer, emailService, audit, logger, cfg.DevMode())
	activationService := services.NewActivationService(clientRepo, clientRepo,
		passwordService, jwtService, emailService, audit, logger, cfg.DevMode())

	// Handlers and middleware
	authHandlers := handlers.NewAuthHandlers(authService, logger)
	activationHandlers := handlers.NewActivationHandlers(activationService, logger)
	clientHandlers := handlers.NewClientHandlers(authService, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, authRepo)
	securityMiddleware := middleware.NewSecurityMiddleware(redisClient, logger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandlers.Register)
			auth.POST("/login", securityMiddleware.LoginLockoutMiddleware(), authHandlers.Login)
			auth.POST("/password-reset/request", authHandlers.RequestPasswordReset)
			auth.POST("/password-reset/confirm", authHandlers.ConfirmPasswordReset)
		}

		authProtected := api.Group("/auth")
		authProtected.Use(authMiddleware.AuthRequired())
		{
			authProtected.POST("/logout", authHandlers.Logout)
			authProtected.GET("/me", authHandlers.Me)
			authProtected.PUT("/me", authHandlers.UpdateMe)
			authProtected.POST("/email/send-code", authHandlers.SendEmailCode)
			authProtected.POST("/email/verify-code", authHandlers.VerifyEmailCode)
		}

		clientAuth := api.Group("/client-auth")
		{
			clientAuth.POST("/login", securityMiddleware.LoginLockoutMiddleware(), clientHandlers.Login)

			// Token flow
			clientAuth.POST("/verify-token", activationHandlers.VerifyToken)
			clientAuth.POST("/send-verification-code", activationHandlers.SendVerificationCode)
			clientAuth.POST("/verify-code", activationHandlers.VerifyCode)
			clientAuth.POST("/complete-activation", activationHandlers.CompleteActivation)

			// Manual flow, also reachable under the legacy public prefixes
			activationHandlers.RegisterManualRoutes(clientAuth)
		}
		activationHandlers.RegisterManualRoutes(api.Group("/activate"))
		activationHandlers.RegisterManualRoutes(api.Group("/public"))

		clientProtected := api.Group("/client-auth")
		clientProtected.Use(authMiddleware.ClientAuthRequired())
		{
			clientProtected.GET("/me", clientHandlers.Me)
			clientProtected.POST("/change-password", clientHandlers.ChangePassword)
		}
	}

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.WithFields(logrus.Fields{
		"addr": serverAddr,
		"mode": cfg.Server.Mode,
	}).Info("Auth service starting")

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initDatabase opens the Postgres connection pool
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// initRedis connects to Redis; a failed connection is not fatal, the
// lockout middleware falls back to in-memory state.
func initRedis(cfg *config.Config, logger *logrus.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis connection failed, continuing with in-memory lockout state")
		return nil
	}
	return rdb
}
