package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:access:"

// Revoked access tokens live in Redis until their natural expiry. The client
// is optional: without one, signout still destroys the refresh session and
// issued access tokens simply age out.
var blacklistClient *redis.Client

// SetBlacklistClient wires the Redis client used for token revocation.
// Passing nil turns revocation checks into no-ops.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// BlacklistAccessToken marks token revoked for ttl, typically the token's
// remaining lifetime. A no-op without a configured client.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil {
		return nil
	}
	return blacklistClient.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
}

// IsAccessTokenBlacklisted reports whether token was revoked. Without a
// configured client every token passes.
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	n, err := blacklistClient.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
