package cmd

import (
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var sideName string
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <image-id>",
		Short: "Download and decode a single card image",
		Long: `Fetches one image from the image service, decodes it, and reports its
dimensions, decoded size and sampled background color.`,
		Example: `  # Inspect the back of a card
  stereocards fetch abc123 --side back

  # Save the decoded image as PNG
  stereocards fetch abc123 -o card.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := cards.ParseSide(sideName)
			if err != nil {
				return err
			}

			fetcher := images.NewFetcher(settings.ImageEndpoint)
			fetcher.SizeClass = settings.SizeClass
			cache := imagecache.New(settings.CacheLimitBytes)
			loader := images.NewLoader(cache, fetcher, imaging.NewStdDecoder())

			bm, err := loader.Load(cmd.Context(), args[0], side)
			if err != nil {
				var ie *imaging.Error
				if errors.As(err, &ie) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\n%s\n", ie.Description(), ie.RecoverySuggestion())
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Image: %s (%s)\n", args[0], side)
			fmt.Fprintf(out, "  Format: %s\n", bm.Format())
			fmt.Fprintf(out, "  Dimensions: %dx%d\n", bm.Width(), bm.Height())
			fmt.Fprintf(out, "  Decoded size: %s\n", humanize.IBytes(uint64(bm.ByteSize())))
			if c, ok := imaging.SampleBackgroundColor(bm); ok {
				fmt.Fprintf(out, "  Background color: %s\n", c.Hex())
			}

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				if err := png.Encode(f, bm.Image()); err != nil {
					return fmt.Errorf("failed to encode PNG: %w", err)
				}
				fmt.Fprintf(out, "  Saved: %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sideName, "side", string(cards.Front), "Card side (front or back)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the decoded image as PNG")

	return cmd
}
