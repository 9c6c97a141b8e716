package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var dbPath string
	var manifestPath string
	var reportPath string
	var extension string

	cmd := &cobra.Command{
		Use:   "import <directory>",
		Short: "Import a directory of card records",
		Long: `Reads every record file in a directory, downloads the front and back image
of each card from the image service, and stores the card in the catalog database.

Cards whose images cannot be downloaded are still imported without them. A
malformed record file stops the import. Press Ctrl+C to stop after the current card.`,
		Example: `  # Import records into the default database
  stereocards import ./records

  # Also write a parquet manifest and a YAML report
  stereocards import ./records --manifest cards.parquet --report reports/import.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if dbPath == "" {
				dbPath = settings.DatabasePath
			}

			store, err := catalog.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var sink catalog.Sink = store
			var manifest *catalog.ManifestWriter
			if manifestPath != "" {
				manifest, err = catalog.CreateManifest(manifestPath)
				if err != nil {
					return err
				}
				sink = catalog.MultiSink{store, manifest}
			}

			fetcher := images.NewFetcher(settings.ImageEndpoint)
			fetcher.SizeClass = settings.SizeClass

			im := importer.New(fetcher, sink, importer.WithExtension(extension))
			run, err := im.Start(cmd.Context(), dir)
			if err != nil {
				if manifest != nil {
					_ = manifest.Close()
				}
				return err
			}

			out := cmd.OutOrStdout()
			for p := range run.Progress() {
				fmt.Fprintf(out, "\r  Imported %d/%d cards", p.Completed, p.Total)
			}
			fmt.Fprintln(out)

			runErr := run.Wait()
			if manifest != nil {
				if err := manifest.Close(); err != nil {
					slog.Error("Failed to finalize manifest", "path", manifestPath, "error", err)
				}
			}

			summary := run.Summary()
			if reportPath != "" {
				if err := importer.WriteReport(reportPath, summary); err != nil {
					slog.Error("Failed to write import report", "path", reportPath, "error", err)
				}
			}

			printSummary(cmd, summary, dbPath, manifestPath)
			if imaging.IsKind(runErr, imaging.KindCancelled) {
				fmt.Fprintln(out, "Import cancelled.")
				return nil
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Catalog database path (default from STEREOCARDS_DB)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Write a parquet manifest of imported cards")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML import report")
	cmd.Flags().StringVar(&extension, "ext", importer.DefaultExtension, "Record file extension")

	return cmd
}

func printSummary(cmd *cobra.Command, s importer.Summary, dbPath, manifestPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nImport %s (%s)\n", s.State, s.RunID)
	fmt.Fprintf(out, "  Cards imported: %d of %d\n", s.Completed, s.Total)
	fmt.Fprintf(out, "  Missing front images: %d\n", s.MissingFront)
	fmt.Fprintf(out, "  Missing back images: %d\n", s.MissingBack)
	fmt.Fprintf(out, "  Duration: %s\n", s.Duration().Round(1e6))
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(out, "  Database: %s (%s)\n", dbPath, humanize.Bytes(uint64(info.Size())))
	}
	if manifestPath != "" {
		fmt.Fprintf(out, "  Manifest: %s\n", manifestPath)
	}
	if s.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", s.Error)
	}
}
