// Package images fetches card images from the image service and serves
// decoded bitmaps through a shared cache.
package images

import (
	"context"
	"log/slog"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ImageSource returns the encoded bytes of an image by identifier.
type ImageSource interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// CacheKey is the cache address of one side of an image: "<id>_<side>".
func CacheKey(id string, side cards.Side) string {
	return id + "_" + string(side)
}

// Loader is the single entry point for decoded card images. Concurrent
// requests for the same key share one fetch and decode.
type Loader struct {
	cache   *imagecache.Cache
	source  ImageSource
	decoder imaging.Decoder
	metrics metrics.Interface
	group   singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderMetrics reports fetches and coalesced requests to m.
func WithLoaderMetrics(m metrics.Interface) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// NewLoader wires a cache, an image source and a decoder together.
func NewLoader(cache *imagecache.Cache, source ImageSource, decoder imaging.Decoder, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:   cache,
		source:  source,
		decoder: decoder,
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the decoded bitmap for (id, side), fetching and caching it on
// a miss. Once started, a load runs to completion even if ctx is cancelled,
// because other callers may be waiting on the same result.
func (l *Loader) Load(ctx context.Context, id string, side cards.Side) (*imaging.Bitmap, error) {
	id = CleanIdentifier(id)
	if id == "" {
		return nil, imaging.New(imaging.KindInvalidInput, "load", imaging.ErrEmptyIdentifier)
	}
	key := CacheKey(id, side)

	if bm, ok := l.cache.Get(key); ok {
		return bm, nil
	}

	detached := context.WithoutCancel(ctx)
	// leader is only set by the caller that runs the flight; every other
	// caller that receives the result waited on it.
	var leader bool
	v, err, _ := l.group.Do(key, func() (any, error) {
		leader = true
		// A load for this key may have finished between the miss above and
		// acquiring the flight.
		if bm, ok := l.cache.Get(key); ok {
			return bm, nil
		}
		return l.fetchAndDecode(detached, id, key)
	})
	if !leader {
		l.metrics.IncCoalesced()
	}
	if err != nil {
		return nil, err
	}
	return v.(*imaging.Bitmap), nil
}

func (l *Loader) fetchAndDecode(ctx context.Context, id, key string) (*imaging.Bitmap, error) {
	l.metrics.IncFetch()
	data, err := l.source.Fetch(ctx, id)
	if err != nil {
		slog.Warn("Failed to fetch image", "id", id, "key", key, "error", err)
		return nil, err
	}

	bm, err := l.decoder.Decode(ctx, data)
	if err != nil {
		slog.Warn("Failed to decode image", "id", id, "key", key, "bytes", len(data), "error", err)
		if !imaging.IsKind(err, imaging.KindDecode) {
			err = imaging.New(imaging.KindDecode, "load", err)
		}
		return nil, err
	}

	l.cache.Insert(key, bm)
	return bm, nil
}

// Prefetch loads both faces of a card concurrently and returns the first
// error encountered.
func (l *Loader) Prefetch(ctx context.Context, ids cards.ImageIDs) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, side := range cards.Sides {
		id := ids.For(side)
		g.Go(func() error {
			_, err := l.Load(gctx, id, side)
			return err
		})
	}
	return g.Wait()
}
