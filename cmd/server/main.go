package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smsauth/smsauth/internal/config"
	"github.com/smsauth/smsauth/internal/handlers"
	"github.com/smsauth/smsauth/internal/middleware"
	"github.com/smsauth/smsauth/internal/repository"
	"github.com/smsauth/smsauth/internal/service"
	"github.com/smsauth/smsauth/internal/sms"
	"github.com/smsauth/smsauth/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	otpStore := store.New(ctx, redisClient, logger)

	dynamoClient, err := initDynamoDB(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	smsSender, err := sms.NewTencentSender(&cfg.SMS, cfg.OTP.CodeTTL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize SMS sender")
	}

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	otpService := service.NewOTPService(otpStore, smsSender, jwtService, &cfg.OTP, logger)

	authHandlers := handlers.NewAuthHandlers(otpService, jwtService, userRepo, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)

	router, err := setupRouter(authHandlers, authMiddleware, otpStore, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	if err := redisClient.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close Redis client")
	}

	logger.Info("Server exited")
}

func initDynamoDB(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg), nil
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	otpStore *store.Store,
	cfg *config.Config,
	logger *logrus.Logger,
) (*mux.Router, error) {
	router := mux.NewRouter()

	rateLimit, err := middleware.RateLimitMiddleware(cfg.RateLimit.RequestsPerMinute)
	if err != nil {
		return nil, err
	}

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(rateLimit)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		backend := "memory"
		if otpStore.Durable() {
			backend = "redis"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":    true,
			"time":  time.Now().UTC().Format(time.RFC3339),
			"store": backend,
		})
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()

	smsRoutes := api.PathPrefix("/sms").Subrouter()
	smsRoutes.HandleFunc("/send", authHandlers.SendCode).Methods("POST", "OPTIONS")
	smsRoutes.HandleFunc("/verify", authHandlers.VerifyCode).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/me", authHandlers.Me).Methods("GET")

	return router, nil
}
