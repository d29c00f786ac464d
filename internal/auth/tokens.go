package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "civicpulse:token:"

// TokenStore issues and verifies opaque bearer tokens backed by Redis.
// Tokens expire via Redis TTL; revocation is a delete.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a new token for the principal.
func (s *TokenStore) Issue(ctx context.Context, p Principal) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	value := p.UserID.String() + "|" + p.Email
	if err := s.client.Set(ctx, tokenKeyPrefix+token, value, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// Verify resolves a token to its principal.
func (s *TokenStore) Verify(ctx context.Context, token string) (*Principal, error) {
	value, err := s.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("auth: verify token: %w", err)
	}
	userPart, email, _ := strings.Cut(value, "|")
	userID, err := uuid.Parse(userPart)
	if err != nil {
		return nil, fmt.Errorf("auth: corrupt token record: %w", err)
	}
	return &Principal{UserID: userID, Email: email}, nil
}

// Revoke invalidates a token. Revoking an unknown token is a no-op.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}
