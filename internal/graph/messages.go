package graph

import (
	"context"
	"fmt"

	"github.com/daviddao/mailwatch/internal/types"
)

// Attachment @odata.type values.
const (
	FileAttachmentType = "#microsoft.graph.fileAttachment"
	ItemAttachmentType = "#microsoft.graph.itemAttachment"
)

// EmailAddress is a display name and address pair.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient wraps an address the way the API nests it.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body and its content type (text or html).
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is the subset of message fields mailwatch reads.
type Message struct {
	ID                   string `json:"id"`
	CreatedDateTime      string `json:"createdDateTime"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	ReceivedDateTime     string `json:"receivedDateTime"`
	SentDateTime         string `json:"sentDateTime"`
	Subject              string `json:"subject"`
	Importance           string `json:"importance"`
	ConversationID       string `json:"conversationId"`
	IsRead               bool   `json:"isRead"`
	IsDraft              bool   `json:"isDraft"`
	InternetMessageID    string `json:"internetMessageId"`
	HasAttachments       bool   `json:"hasAttachments"`
	BodyPreview          string `json:"bodyPreview"`

	Body       *ItemBody `json:"body,omitempty"`
	UniqueBody *ItemBody `json:"uniqueBody,omitempty"`

	Sender        *Recipient  `json:"sender,omitempty"`
	From          *Recipient  `json:"from,omitempty"`
	ToRecipients  []Recipient `json:"toRecipients"`
	CcRecipients  []Recipient `json:"ccRecipients"`
	BccRecipients []Recipient `json:"bccRecipients"`

	InternetMessageHeaders []types.Header `json:"internetMessageHeaders"`
}

// Attachment is a message attachment. ContentBytes is only populated for
// file attachments.
type Attachment struct {
	ODataType    string `json:"@odata.type"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentBytes string `json:"contentBytes"`
}

// User is the subset of the user resource used by TestConnection.
type User struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// ListMessages returns up to top messages of a folder received at or after
// receivedFrom, oldest first. receivedFrom is sent as is; callers apply any
// boundary adjustment themselves.
func (c *Client) ListMessages(ctx context.Context, folderID, receivedFrom string, top int) ([]Message, error) {
	path := fmt.Sprintf("%s?$filter=%s&$orderby=ReceivedDateTime&$top=%d&select=*",
		c.userPath("mailFolders", folderID, "messages"),
		escapeQuery("receivedDateTime ge "+receivedFrom),
		top,
	)

	var resp struct {
		Value []Message `json:"value"`
	}
	if err := c.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list messages in folder %s: %w", folderID, err)
	}
	return resp.Value, nil
}

// ListAttachments returns the attachments of a message.
func (c *Client) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	var resp struct {
		Value []Attachment `json:"value"`
	}
	if err := c.Get(ctx, c.userPath("messages", messageID, "attachments"), &resp); err != nil {
		return nil, fmt.Errorf("list attachments of %s: %w", messageID, err)
	}
	return resp.Value, nil
}

// MessageMIME returns the raw MIME content of a message or item attachment.
func (c *Client) MessageMIME(ctx context.Context, id string) ([]byte, error) {
	data, err := c.GetRaw(ctx, c.userPath("messages", id, "$value"))
	if err != nil {
		return nil, fmt.Errorf("get MIME content of %s: %w", id, err)
	}
	return data, nil
}

// GetUser fetches the mailbox owner.
func (c *Client) GetUser(ctx context.Context) (User, error) {
	var user User
	if err := c.Get(ctx, c.userPath(), &user); err != nil {
		return User{}, fmt.Errorf("get user %s: %w", c.mailbox, err)
	}
	return user, nil
}

// TestConnection verifies the mailbox is reachable with the current
// credentials.
func (c *Client) TestConnection(ctx context.Context) (User, error) {
	user, err := c.GetUser(ctx)
	if err != nil {
		return User{}, err
	}
	if user.Mail == "" || user.ID == "" {
		return User{}, fmt.Errorf("failed validating the user %s", c.mailbox)
	}
	return user, nil
}
