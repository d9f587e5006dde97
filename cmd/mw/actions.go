package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailwatch/internal/command"
	"github.com/daviddao/mailwatch/internal/graph"
)

// messageFlags are shared by create-draft and send-mail.
type messageFlags struct {
	to, cc, bcc    string
	subject, body  string
	bodyType, flag string
	importance     string
	headers        string
	attachIDs      string
	attachNames    string
	attachCIDs     string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.to, "to", "", "Comma separated To recipients")
	fl.StringVar(&f.cc, "cc", "", "Comma separated Cc recipients")
	fl.StringVar(&f.bcc, "bcc", "", "Comma separated Bcc recipients")
	fl.StringVar(&f.subject, "subject", "", "Subject")
	fl.StringVar(&f.body, "body", "", "Body content")
	fl.StringVar(&f.bodyType, "body-type", graph.DefaultBodyType, "Body type: text or html")
	fl.StringVar(&f.flag, "flag", graph.DefaultFlag, "Flag status: notFlagged, complete or flagged")
	fl.StringVar(&f.importance, "importance", graph.DefaultImportance, "Importance: Low, Normal or High")
	fl.StringVar(&f.headers, "headers", "", `Comma separated "name:value" internet message headers`)
	fl.StringVar(&f.attachIDs, "attach-ids", "", "Comma separated ids of uploaded files (see 'mw upload')")
	fl.StringVar(&f.attachNames, "attach-names", "", "Comma separated names for --attach-ids, same count")
	fl.StringVar(&f.attachCIDs, "attach-cids", "", "Comma separated ids of uploaded files to attach inline")
}

func (f *messageFlags) input() graph.MessageInput {
	return graph.MessageInput{
		To:          splitList(f.to),
		Cc:          splitList(f.cc),
		Bcc:         splitList(f.bcc),
		Subject:     f.subject,
		Body:        f.body,
		BodyType:    f.bodyType,
		Flag:        f.flag,
		Importance:  f.importance,
		Headers:     splitList(f.headers),
		AttachIDs:   splitList(f.attachIDs),
		AttachNames: splitList(f.attachNames),
		AttachCIDs:  splitList(f.attachCIDs),
	}
}

var (
	draftFlags messageFlags
	sendFlags  messageFlags

	replyMessageID string
	replyTo        string
	replyComment   string

	fetchReset bool
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the broker credentials and that the mailbox is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, command.Command{Kind: command.KindTest, Args: command.TestArgs{}})
	},
}

var createDraftCmd = &cobra.Command{
	Use:   "create-draft",
	Short: "Create a draft in the mailbox's Drafts folder",
	Example: `  mw create-draft --to a@example.com --subject "Report" --body "see attached" --attach-ids 3f2c...
  mw create-draft --to a@example.com --headers "X-Case:42,X-Source:mw" -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, command.Command{
			Kind: command.KindCreateDraft,
			Args: command.CreateDraftArgs{Message: draftFlags.input()},
		})
	},
}

var sendMailCmd = &cobra.Command{
	Use:   "send-mail",
	Short: "Send a message; a copy is kept in Sent Items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, command.Command{
			Kind: command.KindSendMail,
			Args: command.SendMailArgs{Message: sendFlags.input()},
		})
	},
}

var replyToCmd = &cobra.Command{
	Use:   "reply-to",
	Short: "Reply to a message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, command.Command{
			Kind: command.KindReplyTo,
			Args: command.ReplyToArgs{
				MessageID: replyMessageID,
				To:        splitList(replyTo),
				Comment:   replyComment,
			},
		})
	},
}

var sendDraftCmd = &cobra.Command{
	Use:   "send-draft DRAFT_ID",
	Short: "Send a previously created draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, command.Command{
			Kind: command.KindSendDraft,
			Args: command.SendDraftArgs{DraftID: args[0]},
		})
	},
}

var fetchCmd = &cobra.Command{
	Use:     "fetch-incidents",
	Aliases: []string{"fetch"},
	Short:   "Run one fetch cycle and store new mail as incidents",
	Long: `Run one fetch cycle against the configured folder.

The cursor from the previous cycle decides where fetching resumes. It is
only saved after the incidents have been stored, so a failed cycle is
simply repeated on the next invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchReset {
			if err := store.Mailbox(cfg.Mailbox).ResetCursor(cmd.Context()); err != nil {
				return fmt.Errorf("reset cursor: %w", err)
			}
			logger.Info("cursor reset")
		}
		return runCommand(cmd, command.Command{Kind: command.KindFetchIncidents, Args: command.FetchIncidentsArgs{}})
	},
}

func init() {
	draftFlags.register(createDraftCmd)
	sendFlags.register(sendMailCmd)

	replyToCmd.Flags().StringVar(&replyMessageID, "message-id", "", "Id of the message to reply to")
	replyToCmd.Flags().StringVar(&replyTo, "to", "", "Comma separated recipients")
	replyToCmd.Flags().StringVar(&replyComment, "comment", "", "Reply text")
	_ = replyToCmd.MarkFlagRequired("message-id")

	fetchCmd.Flags().BoolVar(&fetchReset, "reset", false, "Forget the saved cursor and start from first_fetch")

	rootCmd.AddCommand(testCmd, createDraftCmd, sendMailCmd, replyToCmd, sendDraftCmd, fetchCmd)
}
