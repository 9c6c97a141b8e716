// Package viewer loads the images of a card for display and records the
// background color sampled from each card's back.
package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
)

// CardStore resolves cards and stores their display color.
type CardStore interface {
	Card(ctx context.Context, id string) (catalog.Card, error)
	SetBackgroundColor(ctx context.Context, id, hex string) error
	ImageBytes(ctx context.Context, id string, side cards.Side) ([]byte, error)
}

// ImageLoader is satisfied by *images.Loader.
type ImageLoader interface {
	Load(ctx context.Context, id string, side cards.Side) (*imaging.Bitmap, error)
	Prefetch(ctx context.Context, ids cards.ImageIDs) error
}

// Result is a loaded card face.
type Result struct {
	Card   catalog.Card
	Side   cards.Side
	Bitmap *imaging.Bitmap
	// Color is set when the back side was loaded and could be sampled.
	Color *imaging.RGB
}

// Service loads card faces. A newer request for the same card supersedes an
// older one: the older request still returns its bitmap but no longer
// writes a background color.
type Service struct {
	store  CardStore
	loader ImageLoader

	mu     sync.Mutex
	latest map[string]uint64
	seq    uint64
}

func NewService(store CardStore, loader ImageLoader) *Service {
	return &Service{
		store:  store,
		loader: loader,
		latest: make(map[string]uint64),
	}
}

// LoadSide loads one face of a card.
func (s *Service) LoadSide(ctx context.Context, cardID string, side cards.Side) (*Result, error) {
	card, err := s.store.Card(ctx, cardID)
	if err != nil {
		return nil, err
	}

	token := s.begin(cardID)
	defer s.end(cardID, token)
	bm, err := s.loader.Load(ctx, card.ImageIDs.For(side), side)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s of card %s: %w", side, cardID, err)
	}

	res := &Result{Card: card, Side: side, Bitmap: bm}
	if side != cards.Back {
		return res, nil
	}

	c, ok := imaging.SampleBackgroundColor(bm)
	if !ok {
		return res, nil
	}
	res.Color = &c

	if !s.isLatest(cardID, token) {
		slog.Debug("Skipping stale background color", "card", cardID)
		return res, nil
	}
	if err := s.store.SetBackgroundColor(ctx, cardID, c.Hex()); err != nil {
		slog.Warn("Failed to store background color", "card", cardID, "error", err)
	} else {
		res.Card.BackgroundColor = c.Hex()
	}
	return res, nil
}

func (s *Service) begin(cardID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest[cardID] = s.seq
	return s.seq
}

// end forgets the card once its latest request has finished.
func (s *Service) end(cardID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[cardID] == token {
		delete(s.latest, cardID)
	}
}

func (s *Service) isLatest(cardID string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[cardID] == token
}

// Prefetch warms the cache with both faces of a card.
func (s *Service) Prefetch(ctx context.Context, cardID string) error {
	card, err := s.store.Card(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.loader.Prefetch(ctx, card.ImageIDs); err != nil {
		return fmt.Errorf("failed to prefetch card %s: %w", cardID, err)
	}
	return nil
}

// StoredImage returns the encoded image saved for one face at import time.
func (s *Service) StoredImage(ctx context.Context, cardID string, side cards.Side) ([]byte, error) {
	return s.store.ImageBytes(ctx, cardID, side)
}

// Card returns a card's stored metadata.
func (s *Service) Card(ctx context.Context, id string) (catalog.Card, error) {
	return s.store.Card(ctx, id)
}
