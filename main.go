package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	api "mailpilot-backend/cmd/api"
	authDelivery "mailpilot-backend/internal/auth/delivery"
	authdomain "mailpilot-backend/internal/auth/domain"
	authRepo "mailpilot-backend/internal/auth/repository"
	emailDelivery "mailpilot-backend/internal/email/delivery"
	emaildomain "mailpilot-backend/internal/email/domain"
	emailRepo "mailpilot-backend/internal/email/repository"
	"mailpilot-backend/internal/notification"
	"mailpilot-backend/internal/pipeline"
	syncDelivery "mailpilot-backend/internal/sync/delivery"
	syncdomain "mailpilot-backend/internal/sync/domain"
	syncRepo "mailpilot-backend/internal/sync/repository"
	syncUsecase "mailpilot-backend/internal/sync/usecase"
	"mailpilot-backend/pkg/ai"
	"mailpilot-backend/pkg/chroma"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/database"
	"mailpilot-backend/pkg/fcm"
	"mailpilot-backend/pkg/gmail"
	"mailpilot-backend/pkg/sse"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.FCMToken{},
		&syncdomain.SyncState{},
		&syncdomain.SyncMetrics{},
		&emaildomain.Email{},
		&emaildomain.Draft{},
	); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	emailCacheRepo := emailRepo.NewEmailCacheRepository(db)
	draftRepo := emailRepo.NewDraftRepository(db)
	syncStateRepo := syncRepo.NewSyncStateRepository(db)
	syncMetricsRepo := syncRepo.NewSyncMetricsRepository(db)

	// Event bus and mailbox client
	sseManager := sse.NewManager()
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)

	// AI service behind a circuit breaker
	var aiService ai.Service
	aiService, err = ai.NewService(ai.Config{
		Provider:     ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey: cfg.GeminiAPIKey,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		log.Fatal("Failed to initialize AI service: ", err)
	}
	aiService = ai.NewBreakerService(aiService)

	// Writing-style store (optional)
	var styleStore pipeline.StyleStore
	if cfg.ChromaAPIKey != "" {
		store, err := chroma.NewStyleStore(cfg)
		if err != nil {
			log.Printf("[WARN] Style store disabled: %v", err)
		} else {
			styleStore = store
		}
	}

	// Job pipeline: Redis-backed when configured, inline otherwise
	var redisClient *redis.Client
	if cfg.QueueEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	stages := pipeline.NewStages(userRepo, emailCacheRepo, draftRepo, gmailService, aiService, sseManager, styleStore, cfg.AICallTimeout)
	pipe := pipeline.New(redisClient, stages, pipeline.Options{
		ProcessingWorkers: cfg.ProcessingWorkers,
		DraftWorkers:      cfg.DraftWorkers,
		LearningWorkers:   cfg.LearningWorkers,
		MaxAttempts:       cfg.JobMaxAttempts,
		BackoffBase:       cfg.JobBackoffBase,
	})
	pipe.Start()

	// Sync machinery
	tracker := syncUsecase.NewActivityTracker(syncStateRepo, cfg.ActivityThrottle)
	scheduler := syncUsecase.NewScheduler(syncStateRepo, cfg.IntervalVeryActive, cfg.IntervalActive, cfg.IntervalSomewhatActive)
	executor := syncUsecase.NewExecutor(userRepo, syncStateRepo, syncMetricsRepo, emailCacheRepo, gmailService, pipe, sseManager, cfg.SyncPageSize)
	cron := syncUsecase.NewCron(scheduler, executor, cfg.CyclePeriod)
	cron.Start()

	// Gmail watch wants the fully qualified topic resource name
	topicName := cfg.GmailPubSubTopic
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	watchTopic := ""
	if cfg.GoogleProjectID != "" {
		watchTopic = "projects/" + cfg.GoogleProjectID + "/topics/" + topicName
	}
	connector := syncUsecase.NewConnector(userRepo, syncStateRepo, gmailService, pipe, watchTopic)

	// Gmail push listener (optional, cron remains the source of truth)
	if cfg.GoogleProjectID != "" {
		var fcmClient *fcm.Client
		if cfg.FirebaseCredentials != "" {
			fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
			if err != nil {
				log.Printf("[WARN] FCM disabled: %v", err)
			}
		}
		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, userRepo, fcmTokenRepo, fcmClient, tracker, executor)
		if err != nil {
			log.Printf("[WARN] Push listener disabled: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GOOGLE_PROJECT_ID not configured, push listener disabled")
	}

	// HTTP surface
	syncHandler := syncDelivery.NewSyncHandler(tracker, cron, connector, syncStateRepo, syncMetricsRepo, sseManager)
	fcmHandler := authDelivery.NewFCMHandler(fcmTokenRepo)
	draftHandler := emailDelivery.NewDraftHandler(draftRepo)
	r := gin.Default()
	api.SetupRoutes(r, syncHandler, fcmHandler, draftHandler, cfg)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Drain in-flight work before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cron.Stop()
	pipe.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
