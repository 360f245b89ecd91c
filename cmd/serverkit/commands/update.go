package commands

import (
	"github.com/spf13/cobra"

	"github.com/serverkit/serverkit/pkg/telemetry"
)

func newUpdateCommand() *cobra.Command {
	var dry bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check cached assets against upstream and refresh them",
		Long: `Check every previously installed asset against its upstream source
and reinstall the ones that are outdated. Assets with a pinned version
are only reported, never moved. Nothing new is installed.`,
		Example: `  # Update everything that floats on "latest"
  serverkit update

  # Only report what would be updated
  serverkit update --dry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				reportError(telemetry.NewLogger(telemetry.DefaultConfig(debug)), err)
				return err
			}
			defer r.Close()

			if err := r.Installer.Update(cmd.Context(), dry); err != nil {
				reportError(r.Log, err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dry, "dry", false, "report updates without installing them")

	return cmd
}
