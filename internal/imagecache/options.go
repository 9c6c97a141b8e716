package imagecache

import (
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
)

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics reports hits, misses, inserts and evictions to m.
func WithMetrics(m metrics.Interface) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger used for eviction and rejection messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides time.Now for LastAccess stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}
