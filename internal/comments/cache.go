package comments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCachePrefix = "studio:comments"

// KV is the subset of the go-redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache stores successful responses in Redis so repeated prompts do not hit the service.
// Redis failures degrade to calling the source directly.
type Cache struct {
	src    Source
	kv     KV
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

func NewCache(src Source, kv KV, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{src: src, kv: kv, ttl: ttl, prefix: defaultCachePrefix, log: log}
}

func (c *Cache) key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s:%s", c.prefix, hex.EncodeToString(sum[:]))
}

func (c *Cache) Generate(ctx context.Context, prompt string) ([]string, error) {
	key := c.key(prompt)
	data, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var lines []string
		if err := json.Unmarshal(data, &lines); err == nil && len(lines) > 0 {
			return lines, nil
		}
		c.log.Warn("discarding unreadable cached comments", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("comment cache get", zap.Error(err))
	}

	lines, err := c.src.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return lines, nil
	}
	if data, err := json.Marshal(lines); err == nil {
		if err := c.kv.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("comment cache set", zap.Error(err))
		}
	}
	return lines, nil
}
