// internal/service/nlp/cache.go
package nlp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = time.Hour

// Cache memoizes NLP extractions in Redis keyed by a hash of the input
// text. Best-effort: cache errors are ignored and the caller re-extracts.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("nlp:extract:%s", hex.EncodeToString(sum[:16]))
}

func (c *Cache) Get(ctx context.Context, text string) (*Extraction, bool) {
	raw, err := c.client.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var ex Extraction
	if err := json.Unmarshal(raw, &ex); err != nil {
		return nil, false
	}
	return &ex, true
}

func (c *Cache) Set(ctx context.Context, text string, ex *Extraction) {
	raw, err := json.Marshal(ex)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(text), raw, cacheTTL)
}
