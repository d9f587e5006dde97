package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailwatch/internal/display"
	"github.com/daviddao/mailwatch/internal/types"
)

type statusOutput struct {
	Mailbox   string            `json:"mailbox"`
	Folder    string            `json:"folder"`
	Cursor    types.FetchCursor `json:"cursor"`
	Token     statusToken       `json:"token"`
	Incidents int               `json:"incidents"`
	Files     int               `json:"files"`
	Database  string            `json:"database"`
}

type statusToken struct {
	Store      string `json:"store"`
	Cached     bool   `json:"cached"`
	Valid      bool   `json:"valid"`
	ValidUntil string `json:"valid_until,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show fetch cursor, token validity and stored incident counts",
	Long: `Show a quick snapshot of the local mailwatch state.

Nothing is sent to the broker or the mail API; the token is reported as
cached in the credential store.

Examples:
  mw status            # Overview
  mw status -o json    # Machine-readable output
  mw st                # Short alias`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cursor, err := store.Mailbox(cfg.Mailbox).LoadCursor(ctx)
		if err != nil {
			return err
		}
		creds, err := credentialStore()
		if err != nil {
			return err
		}
		cred, err := creds.LoadCredential(ctx)
		if err != nil {
			return err
		}
		incidents, err := store.IncidentCount(ctx)
		if err != nil {
			return err
		}
		files, err := store.ListFiles(ctx)
		if err != nil {
			return err
		}

		out := statusOutput{
			Mailbox:   cfg.Mailbox,
			Folder:    cfg.Folder,
			Cursor:    cursor,
			Token:     statusToken{Store: cfg.CredentialStore, Cached: cred != nil},
			Incidents: incidents,
			Files:     len(files),
			Database:  store.Path(),
		}
		if cred != nil {
			out.Token.Valid = cred.Valid(time.Now())
			out.Token.ValidUntil = types.FormatTime(time.Unix(cred.ValidUntil, 0))
		}

		if outputFormat != "text" {
			return writeStructured(cmd, out)
		}

		w := cmd.OutOrStdout()
		display.Header(w, "Mailwatch Status")
		fmt.Fprintln(w)

		fmt.Fprintln(w, "  Mailbox")
		fmt.Fprintf(w, "    %-10s %s %s\n", "Address:", out.Mailbox, display.Dim.Render("("+display.MailboxLabel(out.Mailbox)+")"))
		fmt.Fprintf(w, "    %-10s %s\n", "Folder:", out.Folder)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "  Cursor")
		if cursor.LastRunTime == "" {
			fmt.Fprintf(w, "    %s\n", display.Dim.Render("no fetch yet, the first cycle looks back "+cfg.FirstFetch))
		} else {
			fmt.Fprintf(w, "    %-10s %s %s\n", "Last run:", cursor.LastRunTime, display.Dim.Render("("+display.TimeAgo(cursor.LastRunTime)+")"))
			fmt.Fprintf(w, "    %-10s %s\n", "Folder:", cursor.LastRunFolderPath)
			fmt.Fprintf(w, "    %-10s %d\n", "Seen ids:", len(cursor.LastRunIDs))
			if cursor.LastRunFolderPath != cfg.Folder {
				fmt.Fprintf(w, "    %s\n", display.ErrStyle.Render("folder changed, next cycle starts over"))
			}
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "  Token %s\n", display.Dim.Render("("+out.Token.Store+")"))
		switch {
		case cred == nil:
			fmt.Fprintf(w, "    %s\n", display.Dim.Render("none cached, the next command exchanges the configured refresh token"))
		case out.Token.Valid:
			fmt.Fprintf(w, "    %s until %s\n", display.Success.Render("valid"), out.Token.ValidUntil)
		default:
			fmt.Fprintf(w, "    %s since %s\n", display.ErrStyle.Render("expired"), out.Token.ValidUntil)
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "  Store")
		fmt.Fprintf(w, "    %-10s %d\n", "Incidents:", out.Incidents)
		fmt.Fprintf(w, "    %-10s %d\n", "Files:", out.Files)
		fmt.Fprintf(w, "    %s\n", display.Dim.Render(out.Database))
		fmt.Fprintln(w)

		fmt.Fprintf(w, "  %s\n", display.Dim.Render("Use 'mw fetch-incidents' to poll, 'mw incidents' to browse."))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
