package main

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bcnelson/opnsense-access-control/internal/app"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
)

func newLeasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leases",
		Short: "List the appliance's DHCP leases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				raw, err := a.Client.SearchLeases(cmd.Context())
				if err != nil {
					return err
				}
				leases, err := opnsense.ParseLeases(raw)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetAutoWrapText(false)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.SetHeader([]string{"Hostname", "MAC", "Address"})
				for _, l := range leases {
					table.Append([]string{l.Hostname, l.MAC, l.Address})
				}
				table.Render()
				return nil
			})
		},
	}
}
