package cli

import (
	"github.com/elektrobit/berrymill/internal/dispatch"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newBuildCmd creates the build command
func newBuildCmd(m *mill) *cobra.Command {
	var (
		params       models.BuildParams
		ignoreNested bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build image",
		Long: `Builds the image with "kiwi-ng system boxbuild" in a QEMU VM, or with
"kiwi-ng system build" on the current hardware when --local is given,
after replacing the repositories of the image description.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, done, err := m.setup(cmd.Context(), cmd.OutOrStdout())
			if err != nil || done {
				return err
			}

			// a cross build runs on an amd64 host for an arm64 target
			if params.Cross {
				m.opts.arch = "arm64"
			}

			if !params.Local && !ignoreNested && !m.env.hasVirtualization() {
				logrus.Info("Berrymill currently cannot detect whether you run it in a virtual environment or on bare metal")
				logrus.Warn(noNestedWarning)
				return nil
			}

			if err := m.env.setenv(BoxedPluginEnv, m.store.BoxedPluginConf()); err != nil {
				return err
			}

			repos, err := m.repos()
			if err != nil {
				return err
			}

			params.CommonParams = m.common(app)
			params.Clean = m.opts.clean
			logrus.Debugf("Build parameters: %+v", params)

			builder := dispatch.NewBuilder(m.env.engine, params, repos)
			defer builder.Cleanup()
			return builder.Process(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&params.BoxMemory, "box-memory", dispatch.DefaultBoxMemory, "Main memory of the QEMU VM (box)")
	cmd.Flags().StringVar(&params.CPU, "cpu", "", "CPU of the QEMU VM (box)")
	cmd.Flags().BoolVar(&params.Cross, "cross", false, "Cross build on x86_64 for an aarch64 target")
	cmd.Flags().BoolVarP(&params.Local, "local", "l", false, "Build the image on the current hardware")
	cmd.Flags().StringVar(&params.TargetDir, "target-dir", "", "Store image results in the given directory")
	cmd.Flags().BoolVar(&params.NoAccel, "no-accel", false, "Disable KVM acceleration for boxbuild")
	cmd.Flags().BoolVar(&ignoreNested, "ignore-nested", false, "Ignore the missing nested virtualization warning")
	cmd.MarkFlagsMutuallyExclusive("cpu", "cross", "local")
	_ = cmd.MarkFlagRequired("target-dir")

	return cmd
}
