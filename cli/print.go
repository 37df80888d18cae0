package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-print-agent/escpos"
)

// NewPrintCommand creates the print command and its subcommands.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print a document without running the server",
	}

	cmd.AddCommand(newPrintTicketCommand(rootOpts))
	cmd.AddCommand(newPrintBarcodeCommand(rootOpts))
	cmd.AddCommand(newPrintTextCommand(rootOpts))

	return cmd
}

func newPrintTicketCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "ticket [line...]",
		Short:        "Print a receipt, one argument per line",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := submit(rootOpts, escpos.Ticket(args)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printed ticket (%d lines)\n", len(args))
			return nil
		},
	}
}

func newPrintBarcodeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		copies  int
		caption string
	)

	cmd := &cobra.Command{
		Use:          "barcode <code>...",
		Short:        "Print EAN-13 barcode labels",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := escpos.Barcode(escpos.BarcodeJob{
				Codes:   args,
				Copies:  copies,
				Caption: caption,
			})
			if err != nil {
				return err
			}
			if err := submit(rootOpts, stream); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printed %s x%d\n", strings.Join(args, ", "), copies)
			return nil
		},
	}

	cmd.Flags().IntVarP(&copies, "copies", "n", 1, "number of copies")
	cmd.Flags().StringVarP(&caption, "text", "t", "", "caption printed above each copy")

	return cmd
}

func newPrintTextCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "text <text>",
		Short:        "Print raw text followed by a line feed",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(rootOpts, escpos.Text(args[0]))
		},
	}
}

// submit prints stream as one job on the configured printer
func submit(rootOpts *RootOptions, stream []byte) error {
	e, err := rootOpts.setup(true)
	if err != nil {
		return err
	}
	defer e.teardown()

	return e.session.Submit(stream)
}
