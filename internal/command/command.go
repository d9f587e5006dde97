// Package command executes the mailwatch actions: connection test, the
// four mail actions and one fetch cycle.
package command

import (
	"fmt"

	"github.com/daviddao/mailwatch/internal/graph"
)

// Kind names an action.
type Kind string

const (
	KindTest           Kind = "test"
	KindCreateDraft    Kind = "create-draft"
	KindReplyTo        Kind = "reply-to"
	KindSendDraft      Kind = "send-draft"
	KindSendMail       Kind = "send-mail"
	KindFetchIncidents Kind = "fetch-incidents"
)

// Kinds lists every action in display order.
var Kinds = []Kind{KindTest, KindCreateDraft, KindReplyTo, KindSendDraft, KindSendMail, KindFetchIncidents}

// ParseKind maps an action name to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// TestArgs takes no arguments.
type TestArgs struct{}

// CreateDraftArgs composes a draft.
type CreateDraftArgs struct {
	Message graph.MessageInput
}

// SendMailArgs composes and sends a message.
type SendMailArgs struct {
	Message graph.MessageInput
}

// ReplyToArgs replies to an existing message.
type ReplyToArgs struct {
	MessageID string
	To        []string
	Comment   string
}

// SendDraftArgs sends an existing draft.
type SendDraftArgs struct {
	DraftID string
}

// FetchIncidentsArgs takes no arguments; the folder and limits come from
// the executor's fetcher.
type FetchIncidentsArgs struct{}

// Command is one action with its typed arguments. Args must be the struct
// matching Kind, e.g. ReplyToArgs for KindReplyTo.
type Command struct {
	Kind Kind
	Args any
}

// Result is what every action reports back.
type Result struct {
	HumanReadable string         `json:"human_readable" yaml:"human_readable"`
	Outputs       map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Raw           any            `json:"raw,omitempty" yaml:"raw,omitempty"`
}
