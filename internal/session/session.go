// Package session reads the persisted session token the storefront starts
// with. The store only ever reads it; signing in and out happens elsewhere.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the storage key the token lives under.
const DefaultKey = "token"

// TokenSource returns the persisted token, or "" when nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RedisTokenSource reads the token from a Redis string key.
type RedisTokenSource struct {
	client redis.Cmdable
	key    string
}

// NewRedisTokenSource reads key from client. An empty key means DefaultKey.
func NewRedisTokenSource(client redis.Cmdable, key string) *RedisTokenSource {
	if key == "" {
		key = DefaultKey
	}
	return &RedisTokenSource{client: client, key: key}
}

// Token returns the stored token. A missing key is an anonymous session.
func (s *RedisTokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return strings.TrimSpace(token), nil
}

// Static always returns the same token.
type Static string

// Token returns s.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// Memory is an in-process token store.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns a store holding token.
func NewMemory(token string) *Memory {
	return &Memory{token: token}
}

// Token returns the held token.
func (m *Memory) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

// Set replaces the held token.
func (m *Memory) Set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Fingerprint returns a short stable digest of token for logs and event keys,
// so the token itself never leaves the process. Empty stays empty.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
