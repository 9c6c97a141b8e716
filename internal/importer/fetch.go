package importer

import (
	"context"
	"log/slog"

	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"golang.org/x/sync/errgroup"
)

// fetchSides downloads the front and back images concurrently. A failed or
// skipped side comes back as nil; failures never abort the import.
func fetchSides(ctx context.Context, source images.ImageSource, frontID, backID string) (front, back []byte) {
	var g errgroup.Group
	g.Go(func() error {
		front = fetchBestEffort(ctx, source, frontID)
		return nil
	})
	g.Go(func() error {
		back = fetchBestEffort(ctx, source, backID)
		return nil
	})
	_ = g.Wait()
	return front, back
}

func fetchBestEffort(ctx context.Context, source images.ImageSource, id string) []byte {
	if images.CleanIdentifier(id) == "" {
		return nil
	}
	data, err := source.Fetch(ctx, id)
	if err != nil {
		slog.Warn("Failed to fetch card image, importing without it", "id", id, "error", err)
		return nil
	}
	return data
}
