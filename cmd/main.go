package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"gynecology-chatbot/handler"
	"gynecology-chatbot/internal/assistant"
	"gynecology-chatbot/internal/config"
	"gynecology-chatbot/internal/integrations/paramstore"
	"gynecology-chatbot/internal/repository"
	"gynecology-chatbot/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Configuration (read only here) ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	if os.Getenv("PARAM_PREFIX") == "" {
		slog.Error("required environment variable is not set", "key", "PARAM_PREFIX")
		os.Exit(1)
	}
	cfg, err := config.Load(ctx, ssmClient)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	// ---- Clients ----
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.SessionsIndex)
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
	logConfiguredProviders(cfg)

	// ---- Handler ----
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

	lambda.Start(h.Handle)
}

func logConfiguredProviders(cfg config.Config) {
	for i, p := range cfg.Providers {
		slog.Info("provider", "priority", i+1, "name", p.Name, "model", p.Model, "configured", p.Configured())
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
