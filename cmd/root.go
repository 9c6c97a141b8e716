package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/stereocards/internal/config"
	"github.com/spf13/cobra"
)

// settings is populated by the root command before any subcommand runs.
var settings config.Config

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "stereocards",
		Short: "Stereo card archive image cache and importer",
		Long: `Stereocards imports digitized stereo photo cards and serves their images.

It fetches card faces from the archive's image service, keeps decoded images in a
size-bounded in-memory cache, and imports directories of card records into a local
catalog database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = slog.LevelDebug
			}
			settings = cfg

			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}
