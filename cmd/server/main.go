package main

import (
	"context"
	"log"
	"net/http"

	config "friction-intel-api/configs"
	"friction-intel-api/pkg/events"
	"friction-intel-api/pkg/handlers"
	"friction-intel-api/pkg/llm"
	"friction-intel-api/pkg/services"
	"friction-intel-api/pkg/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg := config.LoadConfig()

	ctx := context.Background()
	pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pgStore.Close()

	llmClient := llm.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMAPIVersion, cfg.LLMDeploymentName)
	classifier := services.NewClassifierService(llmClient)

	batchService := services.NewBatchService(pgStore, classifier, services.BatchConfig{
		BatchSize:     cfg.BatchSize,
		CaseDelay:     cfg.CaseDelay,
		RetryInitial:  cfg.RetryInitial,
		RetryMax:      cfg.RetryMax,
		RetryAttempts: cfg.RetryAttempts,
	})

	ticketBridge := services.NewHTTPTicketBridge(cfg.TicketBridgeURL)
	healthProvider := services.NewHTTPHealthProvider(cfg.HealthProviderURL)

	var publisher services.SnapshotPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Publishing snapshot events to %v (topic %s)", cfg.KafkaBrokers, cfg.KafkaSnapshotTopic)
	}

	scoringService := services.NewScoringService(pgStore, ticketBridge, healthProvider, publisher)
	monitoringService := services.NewMonitoringService()

	frictionHandler := handlers.NewFrictionHandler(batchService)
	ofiHandler := handlers.NewOFIHandler(scoringService, pgStore)
	exportHandler := handlers.NewExportHandler(pgStore)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	r := gin.Default()
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" {
				c.Next()
				return
			}
			if c.GetHeader("X-API-KEY") != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	r.GET("/health", handlers.HealthCheck)

	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		friction := v1.Group("/friction")
		{
			friction.POST("/analyze", frictionHandler.AnalyzeFriction)
			friction.POST("/bulk-analyze", frictionHandler.BulkAnalyzeFriction)
		}

		ofi := v1.Group("/ofi")
		{
			ofi.POST("/calculate", ofiHandler.CalculateOFI)
			ofi.GET("/snapshots/:accountId", ofiHandler.GetSnapshots)
			ofi.GET("/export/:accountId", exportHandler.ExportSnapshots)
		}

		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	log.Printf("Starting Friction Intelligence API on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
