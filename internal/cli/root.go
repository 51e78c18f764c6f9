package cli

import (
	"fmt"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultEnvironment())
}

func newRootCmd(env *environment) *cobra.Command {
	m := &mill{env: env}

	rootCmd := &cobra.Command{
		Use:   "berrymill",
		Short: "berrymill is a root filesystem generator for embedded devices",
		Long: `Berrymill builds root filesystem images for embedded devices with kiwi-ng.

The repositories of the image description are replaced by the repositories
of the berrymill configuration for the target architecture: the system
configuration, the files given with --config and, when use-global-repos is
enabled, the APT repositories configured on this machine.`,
		Example:       "  berrymill -i ./minimal build --target-dir /tmp/out\n  berrymill -i ./minimal prepare --root /tmp/root",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			if m.opts.debug {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !m.opts.showConfig {
				return &models.MillError{
					Type: models.ErrInvalidConfig,
					Err:  fmt.Errorf("no action defined (build, prepare)"),
				}
			}
			_, _, err := m.setup(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&m.opts.showConfig, "show-config", "s", false, "Show the building configuration")
	flags.BoolVarP(&m.opts.debug, "debug", "d", false, "Turn on verbose debugging mode")
	flags.StringVarP(&m.opts.arch, "arch", "a", "", "Target architecture (defaults to the local one)")
	flags.StringArrayVarP(&m.opts.configs, "config", "c", nil, "Configuration file merged over the system configuration (repeatable)")
	flags.StringVarP(&m.opts.image, "image", "i", "", "Path to the image appliance description or its directory")
	flags.StringVarP(&m.opts.profile, "profile", "p", "", "Profile for images that make use of it")
	flags.BoolVar(&m.opts.clean, "clean", false, "Remove previous build results before building")
	_ = rootCmd.MarkPersistentFlagRequired("image")

	// Add subcommands
	rootCmd.AddCommand(newPrepareCmd(m))
	rootCmd.AddCommand(newBuildCmd(m))

	return rootCmd
}
