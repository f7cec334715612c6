package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/newthinker/quantlab/internal/storage"
	"go.uber.org/zap"
)

// cacheNamespace scopes batch cache keys
var cacheNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("quantlab/batch-cache"))

// CacheKey identifies a merged batch result by what produced it. index is
// the reference calendar path, empty for an unaligned batch. The symbol
// order does not matter.
func CacheKey(kind string, symbols []string, start, end time.Time, index string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|", kind, formatBound(start), formatBound(end), index)
	b.WriteString(strings.Join(sorted, ","))

	return kind + "-" + uuid.NewSHA1(cacheNamespace, []byte(b.String())).String()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// BuildFunc produces a merged batch result on a cache miss
type BuildFunc func(ctx context.Context) (map[string][]core.AlignedBar, error)

// Cache is a read-through store of merged batch results
type Cache struct {
	store   storage.Store
	prefix  string
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewCache creates a cache writing under prefix in store.
func NewCache(store storage.Store, prefix string, logger *zap.Logger, reg *metrics.Registry) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, prefix: prefix, logger: logger, metrics: reg}
}

func (c *Cache) path(key string) string {
	return path.Join(c.prefix, key+".gob")
}

// LoadOrBuild returns the cached result for key, or runs build and stores
// its result. refresh skips the lookup and overwrites the entry. The second
// return reports a cache hit.
//
// A build error is returned as is and nothing is stored. A corrupt entry is
// treated as a miss.
func (c *Cache) LoadOrBuild(ctx context.Context, key string, refresh bool, build BuildFunc) (map[string][]core.AlignedBar, bool, error) {
	p := c.path(key)

	if !refresh {
		merged, err := c.load(ctx, p)
		switch {
		case err == nil:
			c.metrics.RecordCache(true)
			c.logger.Info("batch cache hit", zap.String("path", p), zap.Int("symbols", len(merged)))
			return merged, true, nil
		case errors.Is(err, core.ErrNotFound):
		default:
			c.logger.Warn("batch cache unreadable, rebuilding", zap.String("path", p), zap.Error(err))
		}
	}
	c.metrics.RecordCache(false)

	merged, err := build(ctx)
	if err != nil {
		return merged, false, err
	}

	if err := c.save(ctx, p, merged); err != nil {
		c.logger.Warn("failed to write batch cache", zap.String("path", p), zap.Error(err))
	} else {
		c.logger.Info("batch cache written", zap.String("path", p), zap.Int("symbols", len(merged)))
	}
	return merged, false, nil
}

func (c *Cache) load(ctx context.Context, p string) (map[string][]core.AlignedBar, error) {
	data, err := c.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	var merged map[string][]core.AlignedBar
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&merged); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	return merged, nil
}

func (c *Cache) save(ctx context.Context, p string, merged map[string][]core.AlignedBar) error {
	if merged == nil {
		merged = map[string][]core.AlignedBar{}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(merged); err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	return c.store.Write(ctx, p, buf.Bytes())
}
