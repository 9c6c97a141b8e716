// Package catalog holds the persistence collaborators that receive imported
// cards: a SQLite card store and a parquet manifest writer.
package catalog

import (
	"context"
	"errors"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
)

// Sink persists one imported card. front and back are nil when the image
// could not be fetched.
type Sink interface {
	Save(ctx context.Context, rec cards.Record, front, back []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec cards.Record, front, back []byte) error

func (f SinkFunc) Save(ctx context.Context, rec cards.Record, front, back []byte) error {
	return f(ctx, rec, front, back)
}

// MultiSink hands each card to every sink in order and stops at the first
// failure.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, rec cards.Record, front, back []byte) error {
	for _, s := range m {
		if err := s.Save(ctx, rec, front, back); err != nil {
			return err
		}
	}
	return nil
}

// ErrNotFound is returned when a card does not exist in the store.
var ErrNotFound = errors.New("card not found")
