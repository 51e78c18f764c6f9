package cli

import (
	"github.com/elektrobit/berrymill/internal/dispatch"
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newPrepareCmd creates the prepare command
func newPrepareCmd(m *mill) *cobra.Command {
	var params models.PrepareParams

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare sysroot",
		Long: `Prepares the sysroot of the image with "kiwi-ng system prepare" after
replacing the repositories of the image description.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, done, err := m.setup(cmd.Context(), cmd.OutOrStdout())
			if err != nil || done {
				return err
			}

			repos, err := m.repos()
			if err != nil {
				return err
			}

			params.CommonParams = m.common(app)
			logrus.Debugf("Prepare parameters: %+v", params)

			preparer := dispatch.NewPreparer(m.env.engine, params, repos)
			defer preparer.Cleanup()
			return preparer.Process(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&params.Root, "root", "", "Directory of the output sysroot")
	cmd.Flags().BoolVar(&params.AllowExistingRoot, "allow-existing-root", false, "Allow an existing root directory")
	_ = cmd.MarkFlagRequired("root")

	return cmd
}
