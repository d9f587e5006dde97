package graph

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/mailwatch/internal/types"
)

// Defaults applied by BuildMessage.
const (
	DefaultBodyType   = "text"
	DefaultFlag       = "notFlagged"
	DefaultImportance = "Low"

	bodyPreviewLen = 255
)

// InvalidArgumentError reports bad input detected before any request or
// file read is made.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Message
}

// IsInvalidArgument reports whether err wraps an *InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// FileReader reads files previously added to the upload store.
type FileReader interface {
	ReadFile(ctx context.Context, id string) (name string, data []byte, err error)
}

// MessageInput is the flat argument set for composing a message.
type MessageInput struct {
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	Body       string
	BodyType   string
	Flag       string
	Importance string
	// Headers are "name:value" strings.
	Headers     []string
	AttachIDs   []string
	AttachNames []string
	AttachCIDs  []string
}

// Flag is the follow-up flag of a message.
type Flag struct {
	FlagStatus string `json:"flagStatus"`
}

// FileAttachment is an outgoing attachment.
type FileAttachment struct {
	ODataType    string `json:"@odata.type"`
	ContentBytes string `json:"contentBytes"`
	IsInline     bool   `json:"isInline"`
	Name         string `json:"name"`
	Size         int    `json:"size"`
}

// OutgoingMessage is the payload for draft creation and sendMail.
type OutgoingMessage struct {
	ToRecipients           []Recipient      `json:"toRecipients"`
	CcRecipients           []Recipient      `json:"ccRecipients"`
	BccRecipients          []Recipient      `json:"bccRecipients"`
	Subject                string           `json:"subject"`
	Body                   ItemBody         `json:"body"`
	BodyPreview            string           `json:"bodyPreview"`
	Importance             string           `json:"importance"`
	Flag                   Flag             `json:"flag"`
	Attachments            []FileAttachment `json:"attachments,omitempty"`
	InternetMessageHeaders []types.Header   `json:"internetMessageHeaders,omitempty"`
}

// BuildMessage turns in into a message payload, reading attachments from
// files. Regular attachments come first, then inline ones.
func BuildMessage(ctx context.Context, files FileReader, in MessageInput) (OutgoingMessage, error) {
	if len(in.AttachNames) > 0 && len(in.AttachNames) != len(in.AttachIDs) {
		return OutgoingMessage{}, &InvalidArgumentError{
			Message: fmt.Sprintf("got %d attachment names for %d attachment ids", len(in.AttachNames), len(in.AttachIDs)),
		}
	}

	headers, err := BuildHeaders(in.Headers)
	if err != nil {
		return OutgoingMessage{}, err
	}

	bodyType := orDefault(in.BodyType, DefaultBodyType)
	msg := OutgoingMessage{
		ToRecipients:           BuildRecipients(in.To),
		CcRecipients:           BuildRecipients(in.Cc),
		BccRecipients:          BuildRecipients(in.Bcc),
		Subject:                in.Subject,
		Body:                   ItemBody{Content: in.Body, ContentType: bodyType},
		BodyPreview:            preview(in.Body),
		Importance:             orDefault(in.Importance, DefaultImportance),
		Flag:                   Flag{FlagStatus: orDefault(in.Flag, DefaultFlag)},
		InternetMessageHeaders: headers,
	}

	regular, err := buildAttachments(ctx, files, in.AttachIDs, in.AttachNames, false)
	if err != nil {
		return OutgoingMessage{}, err
	}
	inline, err := buildAttachments(ctx, files, in.AttachCIDs, nil, true)
	if err != nil {
		return OutgoingMessage{}, err
	}
	msg.Attachments = append(regular, inline...)

	return msg, nil
}

// BuildRecipients wraps bare addresses. It never returns nil so empty
// lists serialize as [].
func BuildRecipients(addresses []string) []Recipient {
	out := make([]Recipient, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, Recipient{EmailAddress: EmailAddress{Address: a}})
	}
	return out
}

// BuildHeaders parses "name:value" strings. Only the first colon splits.
func BuildHeaders(raw []string) ([]types.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make([]types.Header, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, &InvalidArgumentError{Message: fmt.Sprintf("header %q is not in name:value form", h)}
		}
		headers = append(headers, types.Header{Name: name, Value: value})
	}
	return headers, nil
}

func buildAttachments(ctx context.Context, files FileReader, ids, names []string, inline bool) ([]FileAttachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if files == nil {
		return nil, fmt.Errorf("no file store configured for attachments")
	}

	out := make([]FileAttachment, 0, len(ids))
	for i, id := range ids {
		uploadedName, data, err := files.ReadFile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read and encode file with id %s: %w", id, err)
		}
		name := uploadedName
		if len(names) > 0 {
			name = names[i]
		}
		out = append(out, FileAttachment{
			ODataType:    FileAttachmentType,
			ContentBytes: base64.StdEncoding.EncodeToString(data),
			IsInline:     inline,
			Name:         name,
			Size:         len(data),
		})
	}
	return out, nil
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= bodyPreviewLen {
		return body
	}
	return string(r[:bodyPreviewLen])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// CreateDraft stores msg in the mailbox's Drafts folder and returns the
// created message.
func (c *Client) CreateDraft(ctx context.Context, msg OutgoingMessage) (Message, error) {
	var created Message
	if err := c.Post(ctx, c.userPath("messages"), msg, &created); err != nil {
		return Message{}, fmt.Errorf("create draft: %w", err)
	}
	return created, nil
}

// SendMail sends msg directly; a copy lands in Sent Items.
func (c *Client) SendMail(ctx context.Context, msg OutgoingMessage) error {
	payload := struct {
		Message OutgoingMessage `json:"message"`
	}{Message: msg}
	if err := c.Post(ctx, c.userPath("sendMail"), payload, nil); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type replyPayload struct {
	Message struct {
		ToRecipients []Recipient `json:"toRecipients"`
	} `json:"message"`
	Comment string `json:"comment"`
}

// ReplyTo replies to messageID, addressed to the given recipients.
func (c *Client) ReplyTo(ctx context.Context, messageID string, to []string, comment string) error {
	var payload replyPayload
	payload.Message.ToRecipients = BuildRecipients(to)
	payload.Comment = comment

	if err := c.Post(ctx, c.userPath("messages", messageID, "reply"), payload, nil); err != nil {
		return fmt.Errorf("reply to %s: %w", messageID, err)
	}
	return nil
}

// SendDraft sends a previously created draft.
func (c *Client) SendDraft(ctx context.Context, draftID string) error {
	if err := c.Post(ctx, c.userPath("messages", draftID, "send"), nil, nil); err != nil {
		return fmt.Errorf("send draft %s: %w", draftID, err)
	}
	return nil
}
