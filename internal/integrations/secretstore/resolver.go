package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsAPI is the minimal AWS Secrets Manager interface required by
// Resolver. *secretsmanager.Client from aws-sdk-go-v2 satisfies it.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Getter is the interface consumers (e.g. the astrologer client) should
// depend on rather than the concrete *Resolver so they remain testable
// without real AWS calls.
type Getter interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// Resolver fetches JSON secrets from Secrets Manager and caches them for
// the lifetime of the process. The cache can be invalidated explicitly,
// e.g. after a secret rotation.
type Resolver struct {
	api secretsAPI

	mu    sync.Mutex
	cache map[string]map[string]string
}

// New creates a Resolver with the given Secrets Manager API implementation.
func New(api secretsAPI) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("secretstore: api must not be nil")
	}
	return &Resolver{api: api, cache: make(map[string]map[string]string)}, nil
}

// GetSecret returns the parsed JSON payload of the named secret, served
// from the in-process cache after the first successful fetch.
func (r *Resolver) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("secretstore: name is required")
	}

	r.mu.Lock()
	cached, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return nil, fmt.Errorf("secretstore: get secret %q: %w", name, err)
	}
	if out == nil || out.SecretString == nil {
		return nil, fmt.Errorf("secretstore: secret %q has no string value", name)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return nil, fmt.Errorf("secretstore: secret %q is not valid JSON: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = payload
	r.mu.Unlock()
	return payload, nil
}

// Invalidate drops a cached secret so the next read refetches it.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}
