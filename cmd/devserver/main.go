package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"gynecology-chatbot/handler"
	"gynecology-chatbot/internal/assistant"
	"gynecology-chatbot/internal/config"
	"gynecology-chatbot/internal/devserver"
	"gynecology-chatbot/internal/integrations/paramstore"
	"gynecology-chatbot/internal/repository"
	"gynecology-chatbot/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// Credentials come from *_API_KEY unless PARAM_PREFIX points at SSM.
	var params paramstore.Lookuper
	if os.Getenv("PARAM_PREFIX") != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			fatal("failed to create SSM client", err)
		}
		params = ssmClient
	}
	cfg, err := config.Load(ctx, params)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	dynamoClient := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	store, err := repository.New(dynamoClient, cfg.StateTable, cfg.SessionsIndex)
	if err != nil {
		fatal("failed to create state client", err)
	}

	providers, err := assistant.NewProviders(cfg.Providers, cfg.ProviderTimeout)
	if err != nil {
		fatal("failed to create providers", err)
	}
	orchestrator, err := assistant.NewOrchestrator(logger, providers...)
	if err != nil {
		fatal("failed to create orchestrator", err)
	}
	chatService, err := usecase.NewChatService(store, orchestrator, logger, cfg.HistoryLimit, cfg.MaxMessageLength)
	if err != nil {
		fatal("failed to create chat service", err)
	}
	sessionService, err := usecase.NewSessionService(store, logger)
	if err != nil {
		fatal("failed to create session service", err)
	}
	h, err := handler.NewHandler(chatService, sessionService, logger)
	if err != nil {
		fatal("failed to create handler", err)
	}

	server, err := devserver.New(h.Handle)
	if err != nil {
		fatal("failed to create dev server", err)
	}

	go func() {
		slog.Info("dev server listening", "addr", cfg.DevServerAddr, "providers", orchestrator.Providers())
		if err := server.Start(cfg.DevServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("dev server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("dev server shutdown failed", "err", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
