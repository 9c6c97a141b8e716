package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Card is a stored card with its display hints.
type Card struct {
	cards.Record
	BackgroundColor string    `json:"background_color,omitempty"`
	HasFrontImage   bool      `json:"has_front_image"`
	HasBackImage    bool      `json:"has_back_image"`
	ImportedAt      time.Time `json:"imported_at"`
}

// Store keeps imported cards and their image bytes in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the card database at path and applies migrations.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open card database: %w", err)
	}
	// SQLite serializes writers anyway, and ":memory:" databases are per
	// connection.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Card database ready", "path", path)
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or updates a card. Image bytes already stored are kept when
// the new import could not fetch them.
func (s *Store) Save(ctx context.Context, rec cards.Record, front, back []byte) error {
	titles, err := encodeList(rec.Titles)
	if err != nil {
		return err
	}
	authors, err := encodeList(rec.Authors)
	if err != nil {
		return err
	}
	subjects, err := encodeList(rec.Subjects)
	if err != nil {
		return err
	}
	dates, err := encodeList(rec.Dates)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO cards (identifier, titles, authors, subjects, dates, front_image_id, back_image_id, front_image, back_image)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
  titles = excluded.titles,
  authors = excluded.authors,
  subjects = excluded.subjects,
  dates = excluded.dates,
  front_image_id = excluded.front_image_id,
  back_image_id = excluded.back_image_id,
  front_image = COALESCE(excluded.front_image, cards.front_image),
  back_image = COALESCE(excluded.back_image, cards.back_image)`,
		rec.Identifier, titles, authors, subjects, dates,
		rec.ImageIDs.Front, rec.ImageIDs.Back, nullBlob(front), nullBlob(back))
	if err != nil {
		return fmt.Errorf("failed to save card %s: %w", rec.Identifier, err)
	}
	return nil
}

// Card returns the stored card with the given identifier.
func (s *Store) Card(ctx context.Context, id string) (Card, error) {
	var (
		c                                Card
		titles, authors, subjects, dates string
		color                            sql.NullString
		importedAt                       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT identifier, titles, authors, subjects, dates, front_image_id, back_image_id,
       front_image IS NOT NULL, back_image IS NOT NULL, background_color, imported_at
FROM cards WHERE identifier = ?`, id).Scan(
		&c.Identifier, &titles, &authors, &subjects, &dates,
		&c.ImageIDs.Front, &c.ImageIDs.Back,
		&c.HasFrontImage, &c.HasBackImage, &color, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	if err != nil {
		return Card{}, fmt.Errorf("failed to read card %s: %w", id, err)
	}

	for _, f := range []struct {
		raw string
		dst *[]string
	}{{titles, &c.Titles}, {authors, &c.Authors}, {subjects, &c.Subjects}, {dates, &c.Dates}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return Card{}, fmt.Errorf("failed to decode metadata of card %s: %w", id, err)
		}
	}
	c.BackgroundColor = color.String
	c.ImportedAt = parseTimestamp(importedAt.String)
	return c, nil
}

// ImageBytes returns the stored encoded image of one side.
func (s *Store) ImageBytes(ctx context.Context, id string, side cards.Side) ([]byte, error) {
	column := "front_image"
	if side == cards.Back {
		column = "back_image"
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT "+column+" FROM cards WHERE identifier = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s image of card %s: %w", side, id, err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// SetBackgroundColor stores the display color sampled from the card's back.
func (s *Store) SetBackgroundColor(ctx context.Context, id, hex string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cards SET background_color = ? WHERE identifier = ?`, hex, id)
	if err != nil {
		return fmt.Errorf("failed to set background color of card %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set background color of card %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored cards.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

// parseTimestamp accepts SQLite's CURRENT_TIMESTAMP text as well as the
// RFC 3339 form database/sql produces when the driver returns a time.Time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata list: %w", err)
	}
	return string(b), nil
}

func nullBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
