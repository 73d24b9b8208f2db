package main

import (
	"context"
	"log/slog"
	"os"

	"backend/internal/alerts"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/discord"
	"backend/internal/handlers"
	"backend/internal/secrets"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func main() {
	ctx := context.Background()

	// Configuration and secrets load once per process. Any failure here
	// aborts cold start instead of serving partial functionality.
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load aws config", err)
	}

	reader := secrets.NewReader(secretsmanager.NewFromConfig(awsCfg))

	publicKey, err := reader.GetKey(ctx, cfg.DiscordPublicKeySecretARN, "key")
	if err != nil {
		fatal("failed to load discord public key", err)
	}
	botToken, err := reader.GetKey(ctx, cfg.DiscordTokenSecretARN, "token")
	if err != nil {
		fatal("failed to load discord token", err)
	}

	verifier, err := auth.NewVerifier(publicKey)
	if err != nil {
		fatal("invalid discord public key", err)
	}

	session, err := discord.NewSession(botToken)
	if err != nil {
		fatal("failed to create discord session", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		fatal("failed to init dynamodb", err)
	}

	handler := handlers.NewInteractions(
		cfg,
		verifier,
		db.NewRoleStore(ddb, cfg.RoleMappingsTable),
		db.NewSubscriptionStore(ddb, cfg.SubscriptionsTable),
		discord.NewToggler(session, cfg.RetryAfterCap),
		alerts.NewNotifier(sns.NewFromConfig(awsCfg), cfg.SubscriptionAlertsTopicARN),
	)

	lambda.Start(handler.Handle)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
