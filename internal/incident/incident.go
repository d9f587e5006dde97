// Package incident turns fetched messages into incident records.
package incident

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/types"
)

const untitledAttachment = "untitled_attachment"

// AttachmentDecodeError is logged, never returned, when a file attachment
// carries content that is not valid base64.
type AttachmentDecodeError struct {
	MessageID string
	Name      string
	Err       error
}

func (e *AttachmentDecodeError) Error() string {
	return fmt.Sprintf("decode attachment %q of message %s: %v", e.Name, e.MessageID, e.Err)
}

func (e *AttachmentDecodeError) Unwrap() error {
	return e.Err
}

// IsAttachmentDecodeError reports whether err wraps an *AttachmentDecodeError.
func IsAttachmentDecodeError(err error) bool {
	var de *AttachmentDecodeError
	return errors.As(err, &de)
}

// AttachmentSource fetches attachment content from the mail API.
type AttachmentSource interface {
	ListAttachments(ctx context.Context, messageID string) ([]graph.Attachment, error)
	MessageMIME(ctx context.Context, id string) ([]byte, error)
}

// FileStore keeps attachment content and hands back a reference to it.
type FileStore interface {
	SaveFile(ctx context.Context, name string, data []byte) (types.FileRef, error)
}

// Mapper builds incidents, uploading attachments as it goes.
type Mapper struct {
	Source AttachmentSource
	Files  FileStore
	Log    logrus.FieldLogger
}

// Normalize flattens a message into its normalized form.
func Normalize(msg graph.Message) types.NormalizedEmail {
	email := types.NormalizedEmail{
		ID:             msg.ID,
		CreatedTime:    msg.CreatedDateTime,
		ModifiedTime:   msg.LastModifiedDateTime,
		ReceivedTime:   msg.ReceivedDateTime,
		SentTime:       msg.SentDateTime,
		Subject:        msg.Subject,
		Importance:     msg.Importance,
		ConversationID: msg.ConversationID,
		IsRead:         msg.IsRead,
		IsDraft:        msg.IsDraft,
		MessageID:      msg.InternetMessageID,
		Headers:        msg.InternetMessageHeaders,
		Sender:         address(msg.Sender),
		From:           address(msg.From),
		To:             addresses(msg.ToRecipients),
		Cc:             addresses(msg.CcRecipients),
		Bcc:            addresses(msg.BccRecipients),
	}
	if email.Headers == nil {
		email.Headers = []types.Header{}
	}

	body := msg.Body
	if body == nil || (body.Content == "" && body.ContentType == "") {
		body = msg.UniqueBody
	}
	if body != nil {
		email.Body = body.Content
		email.BodyType = body.ContentType
	}
	return email
}

func address(r *graph.Recipient) string {
	if r == nil {
		return ""
	}
	return r.EmailAddress.Address
}

func addresses(rs []graph.Recipient) []string {
	out := make([]string, 0, len(rs))
	for i := range rs {
		out = append(out, address(&rs[i]))
	}
	return out
}

// Labels renders a normalized email as incident labels: one per header,
// one per recipient address and one per remaining field.
func Labels(e types.NormalizedEmail) []types.Label {
	var labels []types.Label
	add := func(key, value string) {
		labels = append(labels, types.Label{Type: "Email/" + key, Value: value})
	}

	add("ID", e.ID)
	add("CreatedTime", e.CreatedTime)
	add("ModifiedTime", e.ModifiedTime)
	add("ReceivedTime", e.ReceivedTime)
	add("SentTime", e.SentTime)
	add("Subject", e.Subject)
	add("Importance", e.Importance)
	add("ConversationID", e.ConversationID)
	add("IsRead", strconv.FormatBool(e.IsRead))
	add("IsDraft", strconv.FormatBool(e.IsDraft))
	add("MessageID", e.MessageID)
	for _, h := range e.Headers {
		add("Header/"+h.Name, h.Value)
	}
	add("Body", e.Body)
	add("BodyType", e.BodyType)
	add("Sender", e.Sender)
	add("From", e.From)
	for _, a := range e.To {
		add("To", a)
	}
	for _, a := range e.Cc {
		add("Cc", a)
	}
	for _, a := range e.Bcc {
		add("Bcc", a)
	}
	if e.Attachments != nil {
		data, _ := json.Marshal(e.Attachments)
		add("Attachments", string(data))
	}
	return labels
}

// ToIncident normalizes msg, uploads its attachments when it has any and
// builds the incident.
func (m *Mapper) ToIncident(ctx context.Context, msg graph.Message) (types.Incident, error) {
	email := Normalize(msg)

	if msg.HasAttachments {
		refs, err := m.Attachments(ctx, msg.ID)
		if err != nil {
			return types.Incident{}, err
		}
		email.Attachments = refs
	}

	raw, err := json.Marshal(email)
	if err != nil {
		return types.Incident{}, fmt.Errorf("marshal normalized email %s: %w", msg.ID, err)
	}

	details := msg.BodyPreview
	if details == "" {
		details = email.Body
	}

	attachments := email.Attachments
	if attachments == nil {
		attachments = []types.FileRef{}
	}

	return types.Incident{
		Name:       email.Subject,
		Details:    details,
		Labels:     Labels(email),
		Occurred:   email.ReceivedTime,
		Attachment: attachments,
		RawJSON:    string(raw),
	}, nil
}

// Attachments downloads every attachment of a message into the file store.
// File attachments that fail to decode are logged and skipped.
func (m *Mapper) Attachments(ctx context.Context, messageID string) ([]types.FileRef, error) {
	atts, err := m.Source.ListAttachments(ctx, messageID)
	if err != nil {
		return nil, err
	}

	refs := []types.FileRef{}
	for _, att := range atts {
		name := att.Name
		if name == "" && att.ODataType != graph.ItemAttachmentType {
			name = untitledAttachment
		}

		var content []byte
		switch att.ODataType {
		case graph.FileAttachmentType:
			decoded, err := base64.StdEncoding.DecodeString(att.ContentBytes)
			if err != nil {
				m.log().WithError(&AttachmentDecodeError{MessageID: messageID, Name: name, Err: err}).
					Info("skipping attachment")
				continue
			}
			content = decoded
		case graph.ItemAttachmentType:
			mime, err := m.Source.MessageMIME(ctx, att.ID)
			if err != nil {
				return nil, err
			}
			if name == "" {
				name = m.embeddedSubject(messageID, mime)
			}
			content = mime
			name += ".eml"
		default:
			m.log().WithFields(logrus.Fields{
				"message_id": messageID,
				"type":       att.ODataType,
			}).Debug("uploading attachment of unrecognized type as empty file")
		}

		ref, err := m.Files.SaveFile(ctx, name, content)
		if err != nil {
			return nil, fmt.Errorf("upload attachment %q: %w", name, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// embeddedSubject names an unnamed item attachment after the Subject of
// the message it wraps, falling back to untitledAttachment.
func (m *Mapper) embeddedSubject(messageID string, raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		m.log().WithError(err).WithField("message_id", messageID).Debug("embedded message is not parseable MIME")
		return untitledAttachment
	}
	defer mr.Close()

	subject, err := mr.Header.Subject()
	if err != nil {
		m.log().WithError(err).WithField("message_id", messageID).Debug("undecodable embedded subject")
	}
	subject = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, subject))
	if subject == "" {
		return untitledAttachment
	}
	return subject
}

func (m *Mapper) log() logrus.FieldLogger {
	if m.Log != nil {
		return m.Log
	}
	return logrus.StandardLogger()
}
