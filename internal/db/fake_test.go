package db

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo implements just enough DynamoDB semantics for the expressions
// the stores issue: keyed get/put/delete, the updated_at write condition, the
// normalized-name index queries, and the status update.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue

	// failures injects this many transient errors before calls succeed.
	failures int

	calls []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

var errFakeUnavailable = errors.New("provisioned throughput exceeded")

func (f *fakeDynamo) failNext(n int) { f.failures = n }

func (f *fakeDynamo) checkFailure() error {
	if f.failures > 0 {
		f.failures--
		return errFakeUnavailable
	}
	return nil
}

func attrString(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrNumber(av types.AttributeValue) int64 {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return 0
}

func itemKey(key map[string]types.AttributeValue) string {
	parts := make([]string, 0, len(key))
	for _, name := range []string{"guild_id", "mapping_key", "subscription_key"} {
		if av, ok := key[name]; ok {
			parts = append(parts, attrString(av))
		}
	}
	return strings.Join(parts, "|")
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.calls = append(f.calls, "GetItem")
	if err := f.checkFailure(); err != nil {
		return nil, err
	}
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.calls = append(f.calls, "PutItem")
	if err := f.checkFailure(); err != nil {
		return nil, err
	}

	key := itemKey(in.Item)
	if in.ConditionExpression != nil {
		// The only condition the stores use:
		// attribute_not_exists(updated_at) OR updated_at <= :now
		if existing, ok := f.items[key]; ok {
			if av, has := existing["updated_at"]; has {
				now := attrNumber(in.ExpressionAttributeValues[":now"])
				if attrNumber(av) > now {
					return nil, &types.ConditionalCheckFailedException{}
				}
			}
		}
	}

	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.calls = append(f.calls, "UpdateItem")
	if err := f.checkFailure(); err != nil {
		return nil, err
	}

	key := itemKey(in.Key)
	item, ok := f.items[key]
	if !ok {
		item = make(map[string]types.AttributeValue)
		for k, v := range in.Key {
			item[k] = v
		}
		f.items[key] = item
	}

	// The only update the stores use: SET #s = :inactive with #s -> status.
	if attr, ok := in.ExpressionAttributeNames["#s"]; ok {
		item[attr] = in.ExpressionAttributeValues[":inactive"]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.calls = append(f.calls, "DeleteItem")
	if err := f.checkFailure(); err != nil {
		return nil, err
	}
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.calls = append(f.calls, "Query")
	if err := f.checkFailure(); err != nil {
		return nil, err
	}

	guildID := attrString(in.ExpressionAttributeValues[":guild"])

	var matches []map[string]types.AttributeValue
	for _, item := range f.items {
		if attrString(item["guild_id"]) != guildID {
			continue
		}
		normalized := attrString(item["role_name_normalized"])
		if normalized == "" {
			continue
		}
		if prefix, ok := in.ExpressionAttributeValues[":prefix"]; ok {
			if !strings.HasPrefix(normalized, attrString(prefix)) {
				continue
			}
		}
		if partial, ok := in.ExpressionAttributeValues[":partial"]; ok {
			if !strings.Contains(normalized, attrString(partial)) {
				continue
			}
		}
		matches = append(matches, item)
	}

	// Index order: sorted by the range key, role_name_normalized.
	sort.Slice(matches, func(i, j int) bool {
		return attrString(matches[i]["role_name_normalized"]) < attrString(matches[j]["role_name_normalized"])
	})

	if in.Limit != nil && len(matches) > int(*in.Limit) {
		matches = matches[:int(*in.Limit)]
	}

	return &dynamodb.QueryOutput{Items: matches}, nil
}
