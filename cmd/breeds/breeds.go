package breeds

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/dogs-go/internal/app"
	"github.com/tphakala/dogs-go/internal/buildinfo"
	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/conf"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	search string
	group  bool
}

// Command creates the breeds command, which lists breeds and their sub-breeds.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "breeds",
		Short: "List dog breeds",
		Long:  "List all breeds with their sub-breeds. Served from the local cache when fresh, otherwise fetched from the Dog CEO API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), settings, build)
			if err != nil {
				return err
			}
			defer func() { _ = a.CloseWithin(shutdownTimeout) }()

			list, err := a.Catalog.GetBreeds(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), catalog.FilterBreeds(list, opts.search), opts.group)
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

// setupFlags configures flags specific to the breeds command.
func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Only list breeds or sub-breeds containing this text")
	cmd.Flags().BoolVarP(&opts.group, "group", "g", false, "Group breeds by initial letter")
}

func render(w io.Writer, list []catalog.Breed, group bool) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no breeds found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if group {
		for i, g := range catalog.GroupByInitial(list) {
			if i > 0 {
				fmt.Fprintln(tw)
			}
			fmt.Fprintf(tw, "%s\n", g.Initial)
			for _, b := range g.Breeds {
				writeBreed(tw, b)
			}
		}
	} else {
		for _, b := range list {
			writeBreed(tw, b)
		}
	}
	return tw.Flush()
}

func writeBreed(w io.Writer, b catalog.Breed) {
	if len(b.SubBreeds) == 0 {
		fmt.Fprintln(w, b.DisplayName())
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", b.DisplayName(), strings.Join(b.SubBreeds, ", "))
}
