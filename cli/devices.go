package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "devices",
		Short:        "List printers known to the configured backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(true)
			if err != nil {
				return err
			}
			defer e.teardown()

			devices, err := e.session.ListDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No printers found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}
