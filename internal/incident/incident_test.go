package incident

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/types"
)

type fakeSource struct {
	attachments map[string][]graph.Attachment
	mime        map[string][]byte
	mimeCalls   []string
}

func (f *fakeSource) ListAttachments(_ context.Context, messageID string) ([]graph.Attachment, error) {
	return f.attachments[messageID], nil
}

func (f *fakeSource) MessageMIME(_ context.Context, id string) ([]byte, error) {
	f.mimeCalls = append(f.mimeCalls, id)
	data, ok := f.mime[id]
	if !ok {
		return nil, fmt.Errorf("no MIME for %s", id)
	}
	return data, nil
}

type fakeFiles struct {
	saved map[string][]byte
	n     int
}

func (f *fakeFiles) SaveFile(_ context.Context, name string, data []byte) (types.FileRef, error) {
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.n++
	f.saved[name] = data
	return types.FileRef{Path: fmt.Sprintf("file-%d", f.n), Name: name}, nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func sampleMessage() graph.Message {
	return graph.Message{
		ID:                "m1",
		ReceivedDateTime:  "2024-01-01T00:05:00Z",
		Subject:           "Suspicious login",
		Importance:        "high",
		IsRead:            true,
		InternetMessageID: "<abc@example.com>",
		BodyPreview:       "preview text",
		Body:              &graph.ItemBody{ContentType: "html", Content: "<p>body</p>"},
		From:              &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "Eve", Address: "eve@example.com"}},
		ToRecipients: []graph.Recipient{
			{EmailAddress: graph.EmailAddress{Name: "A", Address: "a@example.com"}},
			{EmailAddress: graph.EmailAddress{Address: "b@example.com"}},
		},
		InternetMessageHeaders: []types.Header{{Name: "X-Spam", Value: "yes"}},
	}
}

func TestNormalize(t *testing.T) {
	email := Normalize(sampleMessage())

	if email.ID != "m1" || email.ReceivedTime != "2024-01-01T00:05:00Z" || email.MessageID != "<abc@example.com>" {
		t.Errorf("renamed fields wrong: %+v", email)
	}
	if email.Body != "<p>body</p>" || email.BodyType != "html" {
		t.Errorf("Body = %q/%q", email.Body, email.BodyType)
	}
	if email.From != "eve@example.com" || email.Sender != "" {
		t.Errorf("From = %q, Sender = %q", email.From, email.Sender)
	}
	if len(email.To) != 2 || email.To[0] != "a@example.com" {
		t.Errorf("To = %v", email.To)
	}
	if email.Cc == nil || len(email.Cc) != 0 {
		t.Errorf("Cc = %#v, want empty non-nil", email.Cc)
	}
}

func TestNormalizeUniqueBodyFallback(t *testing.T) {
	msg := graph.Message{
		ID:         "m2",
		UniqueBody: &graph.ItemBody{ContentType: "text", Content: "unique"},
	}
	email := Normalize(msg)
	if email.Body != "unique" || email.BodyType != "text" {
		t.Errorf("Body = %q/%q, want unique/text", email.Body, email.BodyType)
	}
}

func TestLabels(t *testing.T) {
	labels := Labels(Normalize(sampleMessage()))

	counts := map[string]int{}
	values := map[string]string{}
	for _, l := range labels {
		counts[l.Type]++
		values[l.Type] = l.Value
	}

	if counts["Email/To"] != 2 {
		t.Errorf("got %d Email/To labels, want 2", counts["Email/To"])
	}
	if values["Email/Header/X-Spam"] != "yes" {
		t.Errorf("Email/Header/X-Spam = %q", values["Email/Header/X-Spam"])
	}
	if values["Email/IsRead"] != "true" || values["Email/IsDraft"] != "false" {
		t.Errorf("bool labels = %q/%q", values["Email/IsRead"], values["Email/IsDraft"])
	}
	if _, ok := counts["Email/Cc"]; ok {
		t.Error("empty Cc list should produce no labels")
	}
	if _, ok := counts["Email/Attachments"]; ok {
		t.Error("message without attachments should have no Email/Attachments label")
	}
	if labels[0].Type != "Email/ID" {
		t.Errorf("first label = %q, want Email/ID", labels[0].Type)
	}
}

func TestToIncident(t *testing.T) {
	m := &Mapper{Source: &fakeSource{}, Files: &fakeFiles{}, Log: quietLogger()}

	inc, err := m.ToIncident(context.Background(), sampleMessage())
	if err != nil {
		t.Fatalf("ToIncident() error: %v", err)
	}
	if inc.Name != "Suspicious login" || inc.Details != "preview text" || inc.Occurred != "2024-01-01T00:05:00Z" {
		t.Errorf("incident = %+v", inc)
	}
	if inc.Attachment == nil || len(inc.Attachment) != 0 {
		t.Errorf("Attachment = %#v, want empty non-nil", inc.Attachment)
	}

	var raw types.NormalizedEmail
	if err := json.Unmarshal([]byte(inc.RawJSON), &raw); err != nil {
		t.Fatalf("rawJSON is not valid JSON: %v", err)
	}
	if raw.ID != "m1" {
		t.Errorf("rawJSON ID = %q", raw.ID)
	}
}

func TestToIncidentDetailsFallsBackToBody(t *testing.T) {
	msg := sampleMessage()
	msg.BodyPreview = ""
	m := &Mapper{Source: &fakeSource{}, Files: &fakeFiles{}, Log: quietLogger()}

	inc, err := m.ToIncident(context.Background(), msg)
	if err != nil {
		t.Fatalf("ToIncident() error: %v", err)
	}
	if inc.Details != "<p>body</p>" {
		t.Errorf("Details = %q, want body", inc.Details)
	}
}

func TestToIncidentAttachments(t *testing.T) {
	eml := "From: eve@example.com\r\nSubject: forwarded\r\nContent-Type: text/plain\r\n\r\nhello\r\n"
	src := &fakeSource{
		attachments: map[string][]graph.Attachment{
			"m1": {
				{ODataType: graph.FileAttachmentType, Name: "report.txt", ContentBytes: base64.StdEncoding.EncodeToString([]byte("report"))},
				{ODataType: graph.FileAttachmentType, Name: "broken.bin", ContentBytes: "!!not base64!!"},
				{ODataType: graph.ItemAttachmentType, ID: "att-2", Name: "Fwd"},
				{ODataType: graph.FileAttachmentType, ContentBytes: base64.StdEncoding.EncodeToString([]byte("x"))},
			},
		},
		mime: map[string][]byte{"att-2": []byte(eml)},
	}
	files := &fakeFiles{}
	m := &Mapper{Source: src, Files: files, Log: quietLogger()}

	msg := sampleMessage()
	msg.HasAttachments = true
	inc, err := m.ToIncident(context.Background(), msg)
	if err != nil {
		t.Fatalf("ToIncident() error: %v", err)
	}

	if len(inc.Attachment) != 3 {
		t.Fatalf("got %d attachments, want 3 (broken one skipped): %+v", len(inc.Attachment), inc.Attachment)
	}
	wantNames := []string{"report.txt", "Fwd.eml", "untitled_attachment"}
	for i, want := range wantNames {
		if inc.Attachment[i].Name != want {
			t.Errorf("attachment %d name = %q, want %q", i, inc.Attachment[i].Name, want)
		}
	}
	if string(files.saved["report.txt"]) != "report" {
		t.Errorf("report.txt content = %q", files.saved["report.txt"])
	}
	if string(files.saved["Fwd.eml"]) != eml {
		t.Errorf("Fwd.eml content = %q", files.saved["Fwd.eml"])
	}
	if len(src.mimeCalls) != 1 || src.mimeCalls[0] != "att-2" {
		t.Errorf("MIME fetched for %v, want [att-2]", src.mimeCalls)
	}

	found := false
	for _, l := range inc.Labels {
		if l.Type == "Email/Attachments" {
			found = true
		}
	}
	if !found {
		t.Error("expected an Email/Attachments label")
	}
}

func TestToIncidentUnnamedItemAttachment(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want string
	}{
		{
			name: "embedded subject",
			mime: "From: eve@example.com\r\nSubject: Invoice / Q3\r\nContent-Type: text/plain\r\n\r\npay\r\n",
			want: "Invoice _ Q3.eml",
		},
		{
			name: "encoded subject",
			mime: "From: eve@example.com\r\nSubject: =?utf-8?q?R=C3=A9sum=C3=A9?=\r\nContent-Type: text/plain\r\n\r\nhi\r\n",
			want: "R\u00e9sum\u00e9.eml",
		},
		{
			name: "no subject",
			mime: "From: eve@example.com\r\nContent-Type: text/plain\r\n\r\nhi\r\n",
			want: "untitled_attachment.eml",
		},
		{
			name: "not MIME",
			mime: "this line has no header separator\r\n\r\n",
			want: "untitled_attachment.eml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				attachments: map[string][]graph.Attachment{
					"m1": {{ODataType: graph.ItemAttachmentType, ID: "att-1"}},
				},
				mime: map[string][]byte{"att-1": []byte(tt.mime)},
			}
			files := &fakeFiles{}
			m := &Mapper{Source: src, Files: files, Log: quietLogger()}

			msg := sampleMessage()
			msg.HasAttachments = true
			inc, err := m.ToIncident(context.Background(), msg)
			if err != nil {
				t.Fatalf("ToIncident() error: %v", err)
			}
			if len(inc.Attachment) != 1 || inc.Attachment[0].Name != tt.want {
				t.Fatalf("attachments = %+v, want one named %q", inc.Attachment, tt.want)
			}
			if string(files.saved[tt.want]) != tt.mime {
				t.Errorf("saved content = %q", files.saved[tt.want])
			}
		})
	}
}

func TestAttachmentDecodeError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &AttachmentDecodeError{MessageID: "m1", Name: "x", Err: base64.CorruptInputError(3)})
	if !IsAttachmentDecodeError(err) {
		t.Error("IsAttachmentDecodeError() = false, want true")
	}
}
