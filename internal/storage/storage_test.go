package storage

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
)

type noImages struct{}

func (noImages) Fetch(ctx context.Context, id string) ([]byte, error) { return nil, context.Canceled }

func finishedRun(t *testing.T, id string) *importer.Run {
	t.Helper()
	sink := catalog.SinkFunc(func(context.Context, cards.Record, []byte, []byte) error { return nil })
	im := importer.New(noImages{}, sink, importer.WithRunID(func() string { return id }))
	run, err := im.StartFS(context.Background(), fstest.MapFS{}, "mem")
	if err != nil {
		t.Fatalf("StartFS failed: %v", err)
	}
	if err := run.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return run
}

func TestRunStore(t *testing.T) {
	s := New()
	first := finishedRun(t, "first")
	time.Sleep(time.Millisecond)
	second := finishedRun(t, "second")
	s.Set(second)
	s.Set(first)

	if got, ok := s.Get("first"); !ok || got != first {
		t.Errorf("Expected first run, got %v (%v)", got, ok)
	}

	sums := s.Summaries()
	if len(sums) != 2 || sums[0].RunID != "first" || sums[1].RunID != "second" {
		t.Errorf("Expected summaries oldest first, got %+v", sums)
	}
	if sums[0].State != "completed" {
		t.Errorf("Expected completed state, got %s", sums[0].State)
	}

	s.Delete("first")
	if _, ok := s.Get("first"); ok {
		t.Error("Expected first run to be deleted")
	}
}
