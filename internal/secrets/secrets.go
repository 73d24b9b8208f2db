package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// api is the slice of the Secrets Manager client the reader depends on.
type api interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Reader fetches JSON secrets and caches them for the process lifetime.
// Secret material is opaque to callers and is never logged.
type Reader struct {
	client api

	mu    sync.Mutex
	cache map[string]map[string]string
}

func NewReader(client api) *Reader {
	return &Reader{client: client, cache: make(map[string]map[string]string)}
}

// GetKey returns one key out of a JSON secret, fetching each secret at most
// once per process. Failures are not cached; a later call retries the fetch.
func (r *Reader) GetKey(ctx context.Context, secretID, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, ok := r.cache[secretID]
	if !ok {
		out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			return "", fmt.Errorf("get secret value: %w", err)
		}
		if out.SecretString == nil {
			return "", fmt.Errorf("secret has no string value")
		}
		if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
			return "", fmt.Errorf("parse secret json: %w", err)
		}
		r.cache[secretID] = values
	}

	v, ok := values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("key %q not found in secret", key)
	}
	return v, nil
}
