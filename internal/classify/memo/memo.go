// Package memo remembers classifier answers so that repeated notes ("cafe
// 30000" every morning) skip the remote model.
package memo

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/text/unicode/norm"

	"chitieu/internal/classify"
	"chitieu/internal/core"
)

const (
	DefaultExpiration      = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

// Classifier wraps another classifier. Only successful answers are kept.
type Classifier struct {
	next  classify.Classifier
	cache *gocache.Cache
}

var _ classify.Classifier = (*Classifier)(nil)

// New wraps next. A non-positive ttl uses DefaultExpiration.
func New(next classify.Classifier, ttl time.Duration) *Classifier {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &Classifier{
		next:  next,
		cache: gocache.New(ttl, DefaultCleanupInterval),
	}
}

func (c *Classifier) Classify(ctx context.Context, fragment string) (core.Draft, error) {
	key := cacheKey(fragment)
	if v, ok := c.cache.Get(key); ok {
		if d, ok := v.(core.Draft); ok {
			return d, nil
		}
	}
	d, err := c.next.Classify(ctx, fragment)
	if err != nil {
		return core.Draft{}, err
	}
	c.cache.SetDefault(key, d)
	return d, nil
}

// Len reports how many answers are remembered, expired ones included.
func (c *Classifier) Len() int {
	return c.cache.ItemCount()
}

// Flush forgets every answer.
func (c *Classifier) Flush() {
	c.cache.Flush()
}

// cacheKey folds case, Unicode composition and inner whitespace.
func cacheKey(fragment string) string {
	return strings.ToLower(norm.NFC.String(strings.Join(strings.Fields(fragment), " ")))
}
