package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	subscriptionKey = "SUBSCRIPTION"

	StatusActive   = "active"
	StatusInactive = "inactive"

	subscriptionTerm = 30 * 24 * time.Hour
)

// ErrAlreadySubscribed is returned by Subscribe when the guild's current
// subscription is still active.
var ErrAlreadySubscribed = errors.New("guild already has an active subscription")

// GuildSubscription is the single subscription record a guild can hold.
type GuildSubscription struct {
	GuildID         string `dynamodbav:"guild_id"`
	SubscriptionKey string `dynamodbav:"subscription_key"`
	Status          string `dynamodbav:"status"`
	ActivatedAt     int64  `dynamodbav:"activated_at"`
	ExpiresAt       int64  `dynamodbav:"expires_at"`
}

// SubscriptionStore persists per-guild subscription state. Like RoleStore,
// every operation is keyed by guild; writes are single-item and therefore
// all-or-nothing.
type SubscriptionStore struct {
	client API
	table  string
	now    func() time.Time
}

func NewSubscriptionStore(client API, table string) *SubscriptionStore {
	return &SubscriptionStore{client: client, table: table, now: time.Now}
}

func subscriptionItemKey(guildID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"guild_id":         &types.AttributeValueMemberS{Value: guildID},
		"subscription_key": &types.AttributeValueMemberS{Value: subscriptionKey},
	}
}

func (s *SubscriptionStore) get(ctx context.Context, guildID string) (*GuildSubscription, error) {
	out, err := withRetry(func() (*dynamodb.GetItemOutput, error) {
		return s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key:       subscriptionItemKey(guildID),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get subscription: %v", ErrStore, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var sub GuildSubscription
	if err := attributevalue.UnmarshalMap(out.Item, &sub); err != nil {
		return nil, fmt.Errorf("%w: unmarshal subscription: %v", ErrStore, err)
	}
	return &sub, nil
}

// IsActive reports whether the guild currently holds an unexpired active
// subscription. A guild with no record is inactive.
func (s *SubscriptionStore) IsActive(ctx context.Context, guildID string) (bool, error) {
	sub, err := s.get(ctx, guildID)
	if err != nil {
		return false, err
	}
	if sub == nil || sub.Status != StatusActive {
		return false, nil
	}
	return s.now().Unix() <= sub.ExpiresAt, nil
}

// Subscribe activates the guild for one 30-day term. An already-active guild
// is rejected rather than extended.
func (s *SubscriptionStore) Subscribe(ctx context.Context, guildID string) error {
	active, err := s.IsActive(ctx, guildID)
	if err != nil {
		return err
	}
	if active {
		return ErrAlreadySubscribed
	}

	now := s.now().Unix()
	item, err := attributevalue.MarshalMap(GuildSubscription{
		GuildID:         guildID,
		SubscriptionKey: subscriptionKey,
		Status:          StatusActive,
		ActivatedAt:     now,
		ExpiresAt:       now + int64(subscriptionTerm/time.Second),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal subscription: %v", ErrStore, err)
	}

	_, err = withRetry(func() (*dynamodb.PutItemOutput, error) {
		return s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      item,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe guild: %v", ErrStore, err)
	}
	return nil
}

// Unsubscribe flips the guild's subscription to inactive. Unsubscribing a
// guild with no record is a no-op write of the inactive status.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, guildID string) error {
	_, err := withRetry(func() (*dynamodb.UpdateItemOutput, error) {
		return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String(s.table),
			Key:              subscriptionItemKey(guildID),
			UpdateExpression: aws.String("SET #s = :inactive"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":inactive": &types.AttributeValueMemberS{Value: StatusInactive},
			},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: cancel subscription: %v", ErrStore, err)
	}
	return nil
}
