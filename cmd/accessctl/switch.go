package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bcnelson/opnsense-access-control/internal/app"
	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read every device's state from the appliance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				refreshErr := a.Service.RefreshAll(cmd.Context())
				renderSwitches(cmd.OutOrStdout(), a.Service.List())
				return refreshErr
			})
		},
	}
}

func newToggleCmd(use, short string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := domain.Block
			if on {
				intent = domain.Allow
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				resp, err := a.Service.Toggle(cmd.Context(), args[0], intent)
				if resp != nil {
					renderSwitches(cmd.OutOrStdout(), []domain.SwitchView{resp.Switch})
					if resp.Warning != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", resp.Warning)
					}
				}
				return err
			})
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload <name>",
		Short: "Re-issue the firewall filter reload for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				view, err := a.Service.Reload(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderSwitches(cmd.OutOrStdout(), []domain.SwitchView{view})
				return nil
			})
		},
	}
}

func renderSwitches(w io.Writer, views []domain.SwitchView) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Name", "Address", "State", "Intended", "Confirmed", "Pending reload", "Error"})
	for _, v := range views {
		pending := ""
		if v.PendingReload {
			pending = "yes"
		}
		table.Append([]string{
			v.Name, v.Address, v.State.String(), v.Intended.String(), v.Confirmed.String(), pending, v.LastError,
		})
	}
	table.Render()
}
