package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/dogs-go/internal/app"
	"github.com/tphakala/dogs-go/internal/buildinfo"
	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/conf"
)

type options struct {
	count  int
	sample int
	wait   time.Duration
}

// Command creates the images command, which lists image URLs of one breed.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "images <breed>",
		Short: "List images of a breed",
		Long: `List image URLs of a breed, for example "hound" or "hound/afghan" for a sub-breed.
Images are downloaded to the local image directory in the background; use --wait to
give the downloads time to finish before exiting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), settings, build)
			if err != nil {
				return err
			}

			list, err := a.Catalog.GetBreedImages(cmd.Context(), args[0], opts.count)
			if err != nil {
				_ = a.CloseWithin(0)
				return err
			}
			if opts.sample > 0 {
				list = catalog.SampleImages(list, opts.sample, nil)
			}
			if err := render(cmd.OutOrStdout(), list); err != nil {
				_ = a.CloseWithin(0)
				return err
			}

			if err := a.CloseWithin(opts.wait); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

// setupFlags configures flags specific to the images command.
func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Ask the API for this many random images (0 lists all)")
	cmd.Flags().IntVar(&opts.sample, "sample", 0, "Print a random subset of this size")
	cmd.Flags().DurationVar(&opts.wait, "wait", 0, "How long to wait for background downloads before exiting")
}

func render(w io.Writer, list []catalog.Image) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no images found")
		return err
	}
	for _, img := range list {
		local := "-"
		if img.Materialized() {
			local = img.LocalPath
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", img.URL, local); err != nil {
			return err
		}
	}
	return nil
}
