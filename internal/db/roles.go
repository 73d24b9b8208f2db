package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	mappingKeyPrefix = "ROLE#"
	roleNameIndex    = "GuildRoleNameIndex"

	// Discord caps autocomplete responses at 25 choices.
	maxSearchResults = 25
)

var (
	// ErrMappingNotFound means no self-assignable role is registered under
	// the requested name for that guild.
	ErrMappingNotFound = errors.New("role mapping not found")

	// ErrStore wraps DynamoDB failures that survived the retry.
	ErrStore = errors.New("store unavailable")
)

// RoleMapping is one registered self-assignable role. The mapping key carries
// the normalized name, so a guild holds at most one mapping per normalized
// name regardless of display-case differences.
type RoleMapping struct {
	GuildID        string `dynamodbav:"guild_id"`
	MappingKey     string `dynamodbav:"mapping_key"`
	RoleID         string `dynamodbav:"role_id"`
	RoleName       string `dynamodbav:"role_name"`
	NormalizedName string `dynamodbav:"role_name_normalized"`
	UpdatedAt      int64  `dynamodbav:"updated_at"`
}

// RoleStore persists role mappings. Every operation is scoped to a single
// guild at the key level; a store call can never read or write another
// guild's mappings.
type RoleStore struct {
	client API
	table  string
	now    func() time.Time
}

func NewRoleStore(client API, table string) *RoleStore {
	return &RoleStore{client: client, table: table, now: time.Now}
}

// Normalize lowercases a role name for use as the uniqueness and lookup key.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func mappingKey(name string) string {
	return mappingKeyPrefix + Normalize(name)
}

// GetByName looks up the mapping for a role name, case-insensitively.
func (s *RoleStore) GetByName(ctx context.Context, guildID, name string) (*RoleMapping, error) {
	out, err := withRetry(func() (*dynamodb.GetItemOutput, error) {
		return s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"guild_id":    &types.AttributeValueMemberS{Value: guildID},
				"mapping_key": &types.AttributeValueMemberS{Value: mappingKey(name)},
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get role by name: %v", ErrStore, err)
	}
	if out.Item == nil {
		return nil, ErrMappingNotFound
	}

	var m RoleMapping
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("%w: unmarshal mapping: %v", ErrStore, err)
	}
	return &m, nil
}

// Save registers or overwrites the mapping for the role's normalized name.
// Writes carry a millisecond write time and are conditional on not clobbering
// a newer record, so concurrent saves of the same name resolve to the latest
// writer without tearing the item.
func (s *RoleStore) Save(ctx context.Context, guildID, roleID, roleName string) error {
	now := s.now().UnixMilli()

	item, err := attributevalue.MarshalMap(RoleMapping{
		GuildID:        guildID,
		MappingKey:     mappingKey(roleName),
		RoleID:         roleID,
		RoleName:       roleName,
		NormalizedName: Normalize(roleName),
		UpdatedAt:      now,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal mapping: %v", ErrStore, err)
	}

	_, err = withRetry(func() (*dynamodb.PutItemOutput, error) {
		out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(updated_at) OR updated_at <= :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
			},
		})
		if err != nil {
			var cond *types.ConditionalCheckFailedException
			if errors.As(err, &cond) {
				// A newer save already landed; ours is stale and the
				// newer record stands.
				return &dynamodb.PutItemOutput{}, nil
			}
		}
		return out, err
	})
	if err != nil {
		return fmt.Errorf("%w: save role: %v", ErrStore, err)
	}
	return nil
}

// Delete unregisters a mapping. No slash command exposes this yet; the store
// supports it for explicit unregistration.
func (s *RoleStore) Delete(ctx context.Context, guildID, name string) error {
	_, err := withRetry(func() (*dynamodb.DeleteItemOutput, error) {
		return s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"guild_id":    &types.AttributeValueMemberS{Value: guildID},
				"mapping_key": &types.AttributeValueMemberS{Value: mappingKey(name)},
			},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: delete role: %v", ErrStore, err)
	}
	return nil
}

// SearchPrefix returns up to 25 mappings for autocomplete. Prefix matches on
// the normalized-name index come first in index order; when fewer than 25
// exist, substring matches over the guild's remaining mappings fill the rest.
// An empty partial lists the guild's mappings from the top of the index.
func (s *RoleStore) SearchPrefix(ctx context.Context, guildID, partial string) ([]RoleMapping, error) {
	normalized := Normalize(partial)

	matches, err := s.queryPrefix(ctx, guildID, normalized)
	if err != nil {
		return nil, err
	}

	if normalized != "" && len(matches) < maxSearchResults {
		rest, err := s.querySubstring(ctx, guildID, normalized)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]struct{}, len(matches))
		for _, m := range matches {
			seen[m.NormalizedName] = struct{}{}
		}
		for _, m := range rest {
			if _, ok := seen[m.NormalizedName]; ok {
				continue
			}
			matches = append(matches, m)
			if len(matches) == maxSearchResults {
				break
			}
		}
	}

	return matches, nil
}

func (s *RoleStore) queryPrefix(ctx context.Context, guildID, normalized string) ([]RoleMapping, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(roleNameIndex),
		KeyConditionExpression: aws.String("guild_id = :guild"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":guild": &types.AttributeValueMemberS{Value: guildID},
		},
		Limit: aws.Int32(maxSearchResults),
	}
	if normalized != "" {
		in.KeyConditionExpression = aws.String("guild_id = :guild AND begins_with(role_name_normalized, :prefix)")
		in.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: normalized}
	}

	out, err := withRetry(func() (*dynamodb.QueryOutput, error) {
		return s.client.Query(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query roles by prefix: %v", ErrStore, err)
	}
	return unmarshalMappings(out.Items)
}

func (s *RoleStore) querySubstring(ctx context.Context, guildID, normalized string) ([]RoleMapping, error) {
	out, err := withRetry(func() (*dynamodb.QueryOutput, error) {
		return s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			IndexName:              aws.String(roleNameIndex),
			KeyConditionExpression: aws.String("guild_id = :guild"),
			FilterExpression:       aws.String("contains(role_name_normalized, :partial)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":guild":   &types.AttributeValueMemberS{Value: guildID},
				":partial": &types.AttributeValueMemberS{Value: normalized},
			},
			Limit: aws.Int32(maxSearchResults),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query roles by substring: %v", ErrStore, err)
	}
	return unmarshalMappings(out.Items)
}

func unmarshalMappings(items []map[string]types.AttributeValue) ([]RoleMapping, error) {
	mappings := make([]RoleMapping, 0, len(items))
	for _, item := range items {
		var m RoleMapping
		if err := attributevalue.UnmarshalMap(item, &m); err != nil {
			return nil, fmt.Errorf("%w: unmarshal mapping: %v", ErrStore, err)
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}
