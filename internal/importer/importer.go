// Package importer walks a directory of card record files, fetches both
// images of every card and hands the result to a sink, reporting progress as
// it goes.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
)

// DefaultExtension selects record files.
const DefaultExtension = ".json"

// ErrRunActive is returned by Start while another run has not finished.
var ErrRunActive = errors.New("an import is already running")

// Importer runs at most one import at a time.
type Importer struct {
	source    images.ImageSource
	sink      catalog.Sink
	extension string
	newID     func() string
	now       func() time.Time

	mu      sync.Mutex
	current *Run
}

// Option configures an Importer.
type Option func(*Importer)

// WithExtension changes the record file extension (matched case-insensitively).
func WithExtension(ext string) Option {
	return func(im *Importer) {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		im.extension = ext
	}
}

// WithRunID overrides how run identifiers are generated.
func WithRunID(fn func() string) Option {
	return func(im *Importer) { im.newID = fn }
}

// New creates an importer that fetches images from source and persists
// cards through sink.
func New(source images.ImageSource, sink catalog.Sink, opts ...Option) *Importer {
	im := &Importer{
		source:    source,
		sink:      sink,
		extension: DefaultExtension,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Start imports every record file in dir.
func (im *Importer) Start(ctx context.Context, dir string) (*Run, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, imaging.New(imaging.KindFileRead, "list", err)
	}
	if !info.IsDir() {
		return nil, imaging.New(imaging.KindFileRead, "list", fmt.Errorf("%s is not a directory", dir))
	}
	return im.StartFS(ctx, os.DirFS(dir), dir)
}

// StartFS imports every record file at the root of fsys. The directory is
// listed before StartFS returns; the files are processed in name order on a
// separate goroutine.
func (im *Importer) StartFS(ctx context.Context, fsys fs.FS, label string) (*Run, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.current != nil && !im.current.State().Terminal() {
		return nil, ErrRunActive
	}

	run := newRun(im.newID(), label, im.now())
	run.setState(StateListing)

	files, err := listRecordFiles(fsys, im.extension)
	if err != nil {
		slog.Error("Failed to list record files", "directory", label, "error", err)
		return nil, imaging.New(imaging.KindFileRead, "list", err)
	}

	// Room for every snapshot so a slow observer never stalls the run.
	run.progress = make(chan Progress, len(files)+1)
	im.current = run

	slog.Info("Starting import", "run_id", run.ID, "directory", label, "files", len(files))
	go im.process(ctx, run, fsys, files)
	return run, nil
}

// Cancel asks the active run to stop before its next file and forgets it.
func (im *Importer) Cancel() {
	im.mu.Lock()
	run := im.current
	im.current = nil
	im.mu.Unlock()

	if run != nil {
		run.Cancel()
	}
}

// Current returns the most recent run that has not been cancelled, or nil.
func (im *Importer) Current() *Run {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.current
}

func (im *Importer) process(ctx context.Context, run *Run, fsys fs.FS, files []string) {
	// Cancelling ctx only stops the run between files; the file in flight
	// is fetched and saved on a context that ignores the cancellation.
	stop := context.AfterFunc(ctx, run.Cancel)
	defer stop()
	work := context.WithoutCancel(ctx)

	run.setState(StateRunning)
	run.emit(Progress{RunID: run.ID, Total: len(files)})

	for i, name := range files {
		if run.cancelRequested() || ctx.Err() != nil {
			slog.Info("Import cancelled", "run_id", run.ID, "completed", i, "total", len(files))
			run.finish(StateCancelled, imaging.New(imaging.KindCancelled, "import", context.Canceled), im.now())
			return
		}

		if err := im.importFile(work, run, fsys, name); err != nil {
			slog.Error("Import failed", "run_id", run.ID, "file", name, "error", err)
			run.finish(StateFailed, err, im.now())
			return
		}

		run.emit(Progress{RunID: run.ID, Total: len(files), Completed: i + 1})
	}

	slog.Info("Import complete", "run_id", run.ID, "imported", len(files))
	run.finish(StateCompleted, nil, im.now())
}

func (im *Importer) importFile(ctx context.Context, run *Run, fsys fs.FS, name string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return imaging.New(imaging.KindFileRead, "read "+name, err)
	}

	rec, err := cards.DecodeRecord(data)
	if err != nil {
		return imaging.New(imaging.KindRecordDecode, "decode "+name, err)
	}

	front, back := fetchSides(ctx, im.source, rec.ImageIDs.Front, rec.ImageIDs.Back)
	run.noteImages(front != nil, back != nil)

	if err := im.sink.Save(ctx, rec, front, back); err != nil {
		return fmt.Errorf("failed to persist card %s: %w", rec.Identifier, err)
	}

	slog.Debug("Imported card", "run_id", run.ID, "file", name, "identifier", rec.Identifier,
		"front_bytes", len(front), "back_bytes", len(back))
	return nil
}

// listRecordFiles returns the visible regular files at the root of fsys whose
// extension matches ext, sorted by name.
func listRecordFiles(fsys fs.FS, ext string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}
