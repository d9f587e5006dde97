package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailwatch/internal/display"
	"github.com/daviddao/mailwatch/internal/types"
)

var (
	incidentsLimit int
	incidentsAll   bool
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents [MESSAGE_ID]",
	Short: "List stored incidents, or show one by message id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			row, err := store.GetIncident(ctx, cfg.Mailbox, args[0])
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("no incident for message %s", args[0])
			}
			inc, err := row.Incident()
			if err != nil {
				return err
			}
			if outputFormat != "text" {
				return writeStructured(cmd, inc)
			}
			display.IncidentTree(w, "└─", inc)
			fmt.Fprintln(w)
			for _, l := range inc.Labels {
				if l.Type == "Email/Body" {
					continue
				}
				fmt.Fprintf(w, "  %-28s %s\n", display.Dim.Render(l.Type), display.Truncate(l.Value, 80))
			}
			return nil
		}

		mailbox := cfg.Mailbox
		if incidentsAll {
			mailbox = ""
		}
		rows, err := store.ListIncidents(ctx, mailbox, incidentsLimit)
		if err != nil {
			return err
		}

		incidents := make([]types.Incident, 0, len(rows))
		for _, row := range rows {
			inc, err := row.Incident()
			if err != nil {
				return err
			}
			incidents = append(incidents, inc)
		}

		if outputFormat != "text" {
			return writeStructured(cmd, incidents)
		}
		if len(incidents) == 0 {
			fmt.Fprintln(w, "No incidents stored yet.")
			return nil
		}

		fmt.Fprintf(w, "Incidents (%d):\n\n", len(incidents))
		for i, inc := range incidents {
			display.IncidentTree(w, display.Connector(i, len(incidents)), inc)
		}
		return nil
	},
}

func init() {
	incidentsCmd.Flags().IntVarP(&incidentsLimit, "limit", "n", 20, "Maximum incidents to list (0 for all)")
	incidentsCmd.Flags().BoolVar(&incidentsAll, "all-mailboxes", false, "Include incidents of every mailbox")
	rootCmd.AddCommand(incidentsCmd)
}
