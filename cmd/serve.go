package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/handlers"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
	"github.com/lehigh-university-libraries/stereocards/internal/viewer"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve card images and imports over HTTP",
		Long: `Starts the stereo card HTTP service.

Card images are fetched from the image service, decoded once and kept in a
size-bounded in-memory cache. Imports can be started, watched and cancelled
through the /imports endpoints.`,
		Example: `  # Start server on default address :8888
  stereocards serve

  # Start server on a custom address
  stereocards serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = settings.Addr
			}
			if dbPath == "" {
				dbPath = settings.DatabasePath
			}

			store, err := catalog.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			m := metrics.NewSimple()
			cache := imagecache.New(settings.CacheLimitBytes,
				imagecache.WithMetrics(m),
				imagecache.WithLogger(slog.Default()),
			)
			fetcher := images.NewFetcher(settings.ImageEndpoint)
			fetcher.SizeClass = settings.SizeClass
			loader := images.NewLoader(cache, fetcher, imaging.NewStdDecoder(), images.WithLoaderMetrics(m))

			handler := handlers.New(cmd.Context(), handlers.Deps{
				Viewer:   viewer.NewService(store, loader),
				Importer: importer.New(fetcher, store),
				Cache:    cache,
				Metrics:  m,
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Stereocards service available", "addr", addr, "endpoint", settings.ImageEndpoint, "db", dbPath)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default from STEREOCARDS_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Catalog database path (default from STEREOCARDS_DB)")

	return cmd
}
