package serve

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/dogs-go/internal/app"
	"github.com/tphakala/dogs-go/internal/buildinfo"
	"github.com/tphakala/dogs-go/internal/conf"
	"github.com/tphakala/dogs-go/internal/logger"
)

const shutdownTimeout = 30 * time.Second

// Command creates the serve command, which runs the JSON API until interrupted.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the breed catalog over HTTP",
		Long:  "Serve breeds, images, health and Prometheus metrics over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, settings, build)
			if err != nil {
				return err
			}
			log := a.Logger("serve")

			if _, err := a.ResumeImages(ctx); err != nil {
				log.Warn("failed to resume pending images", logger.Error(err))
			}

			runErr := a.NewServer().Run(ctx)
			if err := a.CloseWithin(shutdownTimeout); err != nil {
				log.Warn("shutdown incomplete", logger.Error(err))
			}
			return runErr
		},
	}

	// Set up flags specific to the 'serve' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVarP(&settings.Server.Listen, "listen", "l", viper.GetString("server.listen"), "Listen address of the HTTP API")

	if err := viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
