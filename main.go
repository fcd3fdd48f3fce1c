package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/handlers"
	"caseflow-pipeline/internal/pkg/logger"
	"caseflow-pipeline/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting caseflow pipeline", "environment", cfg.Environment)

	ctx := context.Background()

	caseStore, err := services.NewMongoCaseStore(cfg.Mongo, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to case store")
		os.Exit(1)
	}
	defer caseStore.Close(ctx)

	auditLog, err := services.NewMongoAuditLog(caseStore.Database(), log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize audit log")
		os.Exit(1)
	}

	redisService, err := services.NewRedisService(cfg.Redis, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to redis")
		os.Exit(1)
	}
	defer redisService.Close()

	retriever := services.NewIndexRetriever(cfg.Retrieval, log)

	var lookup services.DocsLookup = services.NoopDocsLookup{}
	if cfg.Lookup.Enabled {
		lookup = services.NewMCPDocsLookup(cfg.Lookup, log)
	}
	defer lookup.Close()

	generation := services.NewOpenAIGenerationClient(cfg.Generation, log)

	policy, err := config.LoadTrustPolicy(cfg.Trust.PolicyFile)
	if err != nil {
		log.WithError(err).Error("Failed to load trust policy")
		os.Exit(1)
	}
	scorer, err := services.NewPolicyTrustScorer(policy, cfg.Trust.ModelVersion)
	if err != nil {
		log.WithError(err).Error("Failed to initialize trust scorer")
		os.Exit(1)
	}

	analysisAgent := services.NewModelAnalysisAgent(generation, log)
	executorAgent := services.NewScoringExecutorAgent(scorer, log)
	notificationAgent := services.NewTemplateNotificationAgent(cfg.Delivery, log)

	var video services.VideoRenderer = services.NoopVideoRenderer{}
	if cfg.Delivery.VideoServiceURL != "" {
		video = services.NewHTTPVideoRenderer(cfg.Delivery, log)
	}
	var email services.EmailSender = services.NoopEmailSender{}
	if cfg.Delivery.EmailServiceURL != "" {
		email = services.NewHTTPEmailSender(cfg.Delivery, log)
	}

	orchestrator := services.NewOrchestrator(
		caseStore, auditLog, redisService,
		retriever, lookup, generation,
		analysisAgent, executorAgent, notificationAgent,
		video, email,
		cfg, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewCaseHandler(orchestrator, log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown was not clean")
	}
	if err := orchestrator.Close(); err != nil {
		log.WithError(err).Warn("Orchestrator shutdown was not clean")
	}
	if err := auditLog.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Audit log shutdown was not clean")
	}

	log.Info("Caseflow pipeline stopped")
}
