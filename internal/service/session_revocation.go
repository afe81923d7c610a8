package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/avelkine/identity-service/pkg/database"
)

// RevocationList marks session tokens dead ahead of their expiry: rotated-out
// refresh tokens and tokens surrendered at logout. Keys hold a hash of the
// token, so no signed token material sits in Redis.
type RevocationList struct {
	redis *database.Redis
}

// NewRevocationList creates the Redis-backed revocation list.
func NewRevocationList(redis *database.Redis) *RevocationList {
	return &RevocationList{redis: redis}
}

// Revoke marks the token dead for ttl, which should cover the token's
// remaining lifetime. A nil list drops the revocation.
func (l *RevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Client.Set(ctx, revocationKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token has been revoked. A nil list revokes
// nothing.
func (l *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	if l == nil {
		return false, nil
	}
	exists, err := l.redis.Client.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return exists > 0, nil
}

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "identity:revoked:" + hex.EncodeToString(sum[:])
}
