package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the interactions Lambda needs. It is built once in
// main and passed by reference into each component, so tests can substitute
// values freely.
type Config struct {
	RoleMappingsTable  string
	SubscriptionsTable string

	DiscordTokenSecretARN     string
	DiscordPublicKeySecretARN string

	// Optional. Subscription lifecycle notifications are skipped when empty.
	SubscriptionAlertsTopicARN string

	// Per-operation budgets, kept well under the 3 second window Discord
	// allows for the initial interaction response.
	StoreTimeout   time.Duration
	DiscordTimeout time.Duration
	RetryAfterCap  time.Duration
}

// Load reads configuration from environment variables. A missing required
// value is a startup failure; the handler never serves partial functionality.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		RoleMappingsTable:          os.Getenv("ROLE_MAPPINGS_TABLE_NAME"),
		SubscriptionsTable:         os.Getenv("GUILD_SUBSCRIPTIONS_TABLE_NAME"),
		DiscordTokenSecretARN:      os.Getenv("DISCORD_TOKEN_SECRET_ARN"),
		DiscordPublicKeySecretARN:  os.Getenv("DISCORD_PUBLIC_KEY_SECRET_ARN"),
		SubscriptionAlertsTopicARN: os.Getenv("SUBSCRIPTION_ALERTS_TOPIC_ARN"),
		StoreTimeout:               2 * time.Second,
		DiscordTimeout:             5 * time.Second,
		RetryAfterCap:              2 * time.Second,
	}

	if cfg.RoleMappingsTable == "" {
		return nil, fmt.Errorf("ROLE_MAPPINGS_TABLE_NAME is required")
	}
	if cfg.SubscriptionsTable == "" {
		return nil, fmt.Errorf("GUILD_SUBSCRIPTIONS_TABLE_NAME is required")
	}
	if cfg.DiscordTokenSecretARN == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN_SECRET_ARN is required")
	}
	if cfg.DiscordPublicKeySecretARN == "" {
		return nil, fmt.Errorf("DISCORD_PUBLIC_KEY_SECRET_ARN is required")
	}

	return cfg, nil
}
