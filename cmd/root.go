package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/dogs-go/cmd/breeds"
	configcmd "github.com/tphakala/dogs-go/cmd/config"
	"github.com/tphakala/dogs-go/cmd/images"
	"github.com/tphakala/dogs-go/cmd/serve"
	"github.com/tphakala/dogs-go/cmd/version"
	"github.com/tphakala/dogs-go/internal/buildinfo"
	"github.com/tphakala/dogs-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dogs",
		Short:         "Dog breed catalog CLI",
		Long:          "Browse dog breeds and their images from the Dog CEO API with an offline cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		breeds.Command(settings, build),
		images.Command(settings, build),
		serve.Command(settings, build),
		configcmd.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return reloadConfig(cmd, settings)
	}

	return rootCmd
}

// reloadConfig re-reads settings from the file named by --config. Flags given on the
// command line keep precedence over the file.
func reloadConfig(cmd *cobra.Command, settings *conf.Settings) error {
	if !cmd.Flags().Changed("config") {
		return nil
	}

	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	reloaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *reloaded

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("error reapplying flag %s: %w", name, err)
		}
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().String("config", viper.GetString("config"), "Path to config.yaml")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
