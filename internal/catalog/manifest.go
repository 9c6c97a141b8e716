package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/parquet-go/parquet-go"
)

// ManifestRow is one imported card in the parquet manifest.
type ManifestRow struct {
	Identifier   string   `parquet:"identifier"`
	Title        string   `parquet:"title"`
	Authors      []string `parquet:"authors,list"`
	Subjects     []string `parquet:"subjects,list"`
	Dates        []string `parquet:"dates,list"`
	FrontImageID string   `parquet:"front_image_id"`
	BackImageID  string   `parquet:"back_image_id"`
	FrontBytes   int64    `parquet:"front_bytes"`
	BackBytes    int64    `parquet:"back_bytes"`
	ImportedAt   string   `parquet:"imported_at"`
}

// ManifestWriter is a Sink that appends a row per card to a parquet file.
// Rows are written when the writer is closed.
type ManifestWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *parquet.GenericWriter[ManifestRow]
	rows int
	now  func() time.Time
}

// CreateManifest creates (or truncates) the manifest file at path.
func CreateManifest(path string) (*ManifestWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	return &ManifestWriter{
		file: f,
		w:    parquet.NewGenericWriter[ManifestRow](f),
		now:  time.Now,
	}, nil
}

func (m *ManifestWriter) Save(ctx context.Context, rec cards.Record, front, back []byte) error {
	row := ManifestRow{
		Identifier:   rec.Identifier,
		Title:        rec.PrimaryTitle(),
		Authors:      rec.Authors,
		Subjects:     rec.Subjects,
		Dates:        rec.Dates,
		FrontImageID: rec.ImageIDs.Front,
		BackImageID:  rec.ImageIDs.Back,
		FrontBytes:   int64(len(front)),
		BackBytes:    int64(len(back)),
		ImportedAt:   m.now().UTC().Format(time.RFC3339),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write([]ManifestRow{row}); err != nil {
		return fmt.Errorf("failed to write manifest row for %s: %w", rec.Identifier, err)
	}
	m.rows++
	return nil
}

// Rows returns the number of rows written so far.
func (m *ManifestWriter) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

// Close flushes the parquet footer and closes the file.
func (m *ManifestWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	werr := m.w.Close()
	ferr := m.file.Close()
	if werr != nil {
		return fmt.Errorf("failed to finalize manifest: %w", werr)
	}
	if ferr != nil {
		return fmt.Errorf("failed to close manifest: %w", ferr)
	}
	slog.Debug("Wrote import manifest", "path", m.file.Name(), "rows", m.rows)
	return nil
}

// ReadManifest loads every row of a manifest file.
func ReadManifest(path string) ([]ManifestRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ManifestRow](pf)
	defer reader.Close()

	var rows []ManifestRow
	for {
		// Fresh batch each time: the reader may reuse nested slice memory.
		batch := make([]ManifestRow, 128)
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest rows: %w", err)
		}
	}
	return rows, nil
}
