package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssecrets "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"mira-agent/handler"
	"mira-agent/internal/config"
	"mira-agent/internal/integrations/astrologer"
	"mira-agent/internal/integrations/bedrock"
	"mira-agent/internal/integrations/objectstore"
	"mira-agent/internal/integrations/secretstore"
	"mira-agent/internal/repository"
	"mira-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	dynamoClient := awsdynamodb.NewFromConfig(awsCfg)
	s3Client := awss3.NewFromConfig(awsCfg)

	profiles, err := repository.NewProfileStore(dynamoClient, cfg.ProfilesTable)
	if err != nil {
		slog.Error("failed to create profile store", "err", err)
		os.Exit(1)
	}
	conversations, err := repository.NewConversationStore(dynamoClient, cfg.ConversationsTable)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}
	secrets, err := secretstore.New(awssecrets.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create secret resolver", "err", err)
		os.Exit(1)
	}
	objects, err := objectstore.New(s3Client, awss3.NewPresignClient(s3Client), cfg.ChartsBucket)
	if err != nil {
		slog.Error("failed to create object store", "err", err)
		os.Exit(1)
	}
	astroClient, err := astrologer.New(secrets, cfg.AstrologySecretName, cfg.GeonamesUsername)
	if err != nil {
		slog.Error("failed to create astrologer client", "err", err)
		os.Exit(1)
	}
	bedrockClient, err := bedrock.New(awsbedrock.NewFromConfig(awsCfg), cfg.BedrockModelID)
	if err != nil {
		slog.Error("failed to create bedrock client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	charts, err := usecase.NewChartService(profiles, astroClient, objects)
	if err != nil {
		slog.Error("failed to create chart service", "err", err)
		os.Exit(1)
	}
	titles, err := usecase.NewTitleSynthesizer(bedrockClient)
	if err != nil {
		slog.Error("failed to create title synthesizer", "err", err)
		os.Exit(1)
	}
	ledger, err := usecase.NewConversationService(conversations, titles)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	chat, err := usecase.NewChatService(profiles, charts, bedrockClient, ledger)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chat, ledger)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
