// Package types defines core data structures for mailwatch.
package types

import (
	"time"
)

// TimeFormat is the layout used for every timestamp mailwatch persists or
// sends in a $filter clause.
const TimeFormat = "2006-01-02T15:04:05Z"

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a provider timestamp. The API usually returns TimeFormat
// but fractional seconds and offsets show up on some tenants.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range []string{TimeFormat, time.RFC3339, time.RFC3339Nano} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Credential is the cached broker credential for one mailbox.
type Credential struct {
	AccessToken  string `json:"access_token"`
	ValidUntil   int64  `json:"valid_until"`
	RefreshToken string `json:"current_refresh_token"`
}

// Valid reports whether the access token may still be used at now.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" || c.ValidUntil == 0 {
		return false
	}
	return now.Unix() < c.ValidUntil
}

// FetchCursor is the "last run" state handed from one fetch cycle to the next.
type FetchCursor struct {
	LastRunTime       string   `json:"LAST_RUN_TIME,omitempty"`
	LastRunIDs        []string `json:"LAST_RUN_IDS"`
	LastRunFolderID   string   `json:"LAST_RUN_FOLDER_ID,omitempty"`
	LastRunFolderPath string   `json:"LAST_RUN_FOLDER_PATH,omitempty"`
}

// Folder is the subset of mail folder fields mailwatch reads.
type Folder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ParentFolderID   string `json:"parentFolderId,omitempty"`
	ChildFolderCount int    `json:"childFolderCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	TotalItemCount   int    `json:"totalItemCount"`
}

// Header is a single internet message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FileRef points at a file in the upload store.
type FileRef struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// NormalizedEmail is the flattened form of a provider message.
type NormalizedEmail struct {
	ID             string    `json:"ID"`
	CreatedTime    string    `json:"CreatedTime"`
	ModifiedTime   string    `json:"ModifiedTime"`
	ReceivedTime   string    `json:"ReceivedTime"`
	SentTime       string    `json:"SentTime"`
	Subject        string    `json:"Subject"`
	Importance     string    `json:"Importance"`
	ConversationID string    `json:"ConversationID"`
	IsRead         bool      `json:"IsRead"`
	IsDraft        bool      `json:"IsDraft"`
	MessageID      string    `json:"MessageID"`
	Headers        []Header  `json:"Headers"`
	Body           string    `json:"Body"`
	BodyType       string    `json:"BodyType"`
	Sender         string    `json:"Sender"`
	From           string    `json:"From"`
	To             []string  `json:"To"`
	Cc             []string  `json:"Cc"`
	Bcc            []string  `json:"Bcc"`
	Attachments    []FileRef `json:"Attachments,omitempty"`
}

// Label is a typed key/value pair attached to an incident.
type Label struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Incident is the record handed to the incident sink, one per email.
type Incident struct {
	Name       string    `json:"name"`
	Details    string    `json:"details"`
	Labels     []Label   `json:"labels"`
	Occurred   string    `json:"occurred"`
	Attachment []FileRef `json:"attachment"`
	RawJSON    string    `json:"rawJSON"`
}

// FetchSummary holds the result of a single fetch-incidents run.
type FetchSummary struct {
	Mailbox     string      `json:"mailbox"`
	FolderPath  string      `json:"folder_path"`
	FolderID    string      `json:"folder_id"`
	Reset       bool        `json:"reset"`
	Fetched     int         `json:"fetched"`
	Stored      int         `json:"stored"`
	NextCursor  FetchCursor `json:"next_cursor"`
	TotalStored int         `json:"total_stored"`
}
