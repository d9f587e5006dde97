package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/incident"
	"github.com/daviddao/mailwatch/internal/sync"
	"github.com/daviddao/mailwatch/internal/types"
)

// Output keys.
const (
	OutputUser         = "MicrosoftGraph.User"
	OutputDraft        = "MicrosoftGraph.Draft"
	OutputEmail        = "MicrosoftGraph.Email"
	OutputFetchSummary = "Mailwatch.FetchSummary"
)

// Mailer is the part of the mail API the actions call.
type Mailer interface {
	TestConnection(ctx context.Context) (graph.User, error)
	CreateDraft(ctx context.Context, msg graph.OutgoingMessage) (graph.Message, error)
	SendMail(ctx context.Context, msg graph.OutgoingMessage) error
	ReplyTo(ctx context.Context, messageID string, to []string, comment string) error
	SendDraft(ctx context.Context, draftID string) error
}

// Executor runs commands for one mailbox. Fetcher, Cursors and Sink are
// only needed for fetch-incidents.
type Executor struct {
	Mailbox string
	Mail    Mailer
	Files   graph.FileReader

	Fetcher *sync.Fetcher
	Cursors sync.CursorStore
	Sink    sync.IncidentSink

	Log logrus.FieldLogger
}

type handler func(ctx context.Context, args any) (Result, error)

func (e *Executor) handlers() map[Kind]handler {
	return map[Kind]handler{
		KindTest:           e.test,
		KindCreateDraft:    e.createDraft,
		KindReplyTo:        e.replyTo,
		KindSendDraft:      e.sendDraft,
		KindSendMail:       e.sendMail,
		KindFetchIncidents: e.fetchIncidents,
	}
}

// Run executes cmd. Errors from the mail API are returned unchanged so
// callers can classify them with the Is* helpers.
func (e *Executor) Run(ctx context.Context, cmd Command) (Result, error) {
	h, ok := e.handlers()[cmd.Kind]
	if !ok {
		return Result{}, fmt.Errorf("unknown command %q", cmd.Kind)
	}
	e.log().WithField("command", cmd.Kind).Debug("running command")
	return h(ctx, cmd.Args)
}

func argsAs[T any](kind Kind, args any) (T, error) {
	switch v := args.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	case nil:
		var zero T
		return zero, nil
	}
	var zero T
	return zero, fmt.Errorf("%s: unexpected arguments of type %T", kind, args)
}

func (e *Executor) test(ctx context.Context, args any) (Result, error) {
	if _, err := argsAs[TestArgs](KindTest, args); err != nil {
		return Result{}, err
	}
	user, err := e.Mail.TestConnection(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{
		HumanReadable: fmt.Sprintf("Success! Connected to %s", user.Mail),
		Outputs:       map[string]any{OutputUser: user},
		Raw:           user,
	}, nil
}

func (e *Executor) createDraft(ctx context.Context, args any) (Result, error) {
	a, err := argsAs[CreateDraftArgs](KindCreateDraft, args)
	if err != nil {
		return Result{}, err
	}
	msg, err := graph.BuildMessage(ctx, e.Files, a.Message)
	if err != nil {
		return Result{}, err
	}
	created, err := e.Mail.CreateDraft(ctx, msg)
	if err != nil {
		return Result{}, err
	}

	draft := incident.Normalize(created)
	return Result{
		HumanReadable: renderTable("Created draft with id: "+draft.ID, emailRows(draft)),
		Outputs:       map[string]any{OutputDraft: draft},
		Raw:           created,
	}, nil
}

func (e *Executor) sendMail(ctx context.Context, args any) (Result, error) {
	a, err := argsAs[SendMailArgs](KindSendMail, args)
	if err != nil {
		return Result{}, err
	}
	msg, err := graph.BuildMessage(ctx, e.Files, a.Message)
	if err != nil {
		return Result{}, err
	}
	if err := e.Mail.SendMail(ctx, msg); err != nil {
		return Result{}, err
	}

	sent := msg
	sent.Attachments = nil
	sent.InternetMessageHeaders = nil
	return Result{
		HumanReadable: renderTable("Email was sent successfully.", sentRows(sent)),
		Outputs:       map[string]any{OutputEmail: sent},
	}, nil
}

func (e *Executor) replyTo(ctx context.Context, args any) (Result, error) {
	a, err := argsAs[ReplyToArgs](KindReplyTo, args)
	if err != nil {
		return Result{}, err
	}
	if a.MessageID == "" {
		return Result{}, &graph.InvalidArgumentError{Message: "message id is required"}
	}
	if err := e.Mail.ReplyTo(ctx, a.MessageID, a.To, a.Comment); err != nil {
		return Result{}, err
	}
	return Result{
		HumanReadable: fmt.Sprintf("Replied to: %s with comment: %s", strings.Join(a.To, ", "), a.Comment),
	}, nil
}

func (e *Executor) sendDraft(ctx context.Context, args any) (Result, error) {
	a, err := argsAs[SendDraftArgs](KindSendDraft, args)
	if err != nil {
		return Result{}, err
	}
	if a.DraftID == "" {
		return Result{}, &graph.InvalidArgumentError{Message: "draft id is required"}
	}
	if err := e.Mail.SendDraft(ctx, a.DraftID); err != nil {
		return Result{}, err
	}
	return Result{
		HumanReadable: fmt.Sprintf("Draft with: %s id was sent successfully.", a.DraftID),
	}, nil
}

func (e *Executor) fetchIncidents(ctx context.Context, args any) (Result, error) {
	if _, err := argsAs[FetchIncidentsArgs](KindFetchIncidents, args); err != nil {
		return Result{}, err
	}
	if e.Fetcher == nil || e.Cursors == nil || e.Sink == nil {
		return Result{}, fmt.Errorf("%s: fetcher, cursor store and incident sink are required", KindFetchIncidents)
	}

	summary, err := sync.Run(ctx, e.Fetcher, e.Cursors, e.Sink, e.Mailbox)
	if err != nil {
		return Result{}, err
	}
	e.log().WithFields(logrus.Fields{
		"fetched": summary.Fetched,
		"stored":  summary.Stored,
		"next":    summary.NextCursor.LastRunTime,
	}).Info("fetch cycle complete")

	return Result{
		HumanReadable: fmt.Sprintf("Fetched %d email(s) from %s, stored %d new incident(s).",
			summary.Fetched, summary.FolderPath, summary.Stored),
		Outputs: map[string]any{OutputFetchSummary: summary},
		Raw:     summary,
	}, nil
}

func (e *Executor) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func emailRows(email types.NormalizedEmail) [][]string {
	return [][]string{
		{"ID", email.ID},
		{"Subject", email.Subject},
		{"From", email.From},
		{"To", strings.Join(email.To, ", ")},
		{"Cc", strings.Join(email.Cc, ", ")},
		{"Bcc", strings.Join(email.Bcc, ", ")},
		{"Importance", email.Importance},
		{"BodyType", email.BodyType},
		{"IsDraft", fmt.Sprint(email.IsDraft)},
		{"CreatedTime", email.CreatedTime},
	}
}

func sentRows(msg graph.OutgoingMessage) [][]string {
	return [][]string{
		{"Subject", msg.Subject},
		{"To", recipientList(msg.ToRecipients)},
		{"Cc", recipientList(msg.CcRecipients)},
		{"Bcc", recipientList(msg.BccRecipients)},
		{"Importance", msg.Importance},
		{"Flag", msg.Flag.FlagStatus},
		{"BodyType", msg.Body.ContentType},
		{"BodyPreview", msg.BodyPreview},
	}
}

func recipientList(rs []graph.Recipient) string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.EmailAddress.Address)
	}
	return strings.Join(out, ", ")
}
