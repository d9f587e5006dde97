package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/mailwatch/internal/types"
)

// WellKnownFolders maps lower-cased display names to the API's folder
// shortcuts, which can be used in place of a folder id.
var WellKnownFolders = map[string]string{
	"archive":              "archive",
	"conversation history": "conversationhistory",
	"deleted items":        "deleteditems",
	"drafts":               "drafts",
	"inbox":                "inbox",
	"junk email":           "junkemail",
	"outbox":               "outbox",
	"sent items":           "sentitems",
}

const (
	rootFolder     = "msgfolderroot"
	childFolderTop = 250
)

// FolderNotFoundError is returned when a path segment matches no folder.
type FolderNotFoundError struct {
	Path string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("no such folder exists: %s", e.Path)
}

// IsFolderNotFound reports whether err wraps a *FolderNotFoundError.
func IsFolderNotFound(err error) bool {
	var nf *FolderNotFoundError
	return errors.As(err, &nf)
}

// SplitFolderPath splits a path on both '/' and '\'.
func SplitFolderPath(path string) []string {
	return strings.Split(strings.ReplaceAll(path, `\`, "/"), "/")
}

// ResolveFolder walks a folder path such as "Inbox/Phishing" one level at a
// time. When the first segment is a well-known folder its shortcut is used
// directly and the root listing is skipped.
func (c *Client) ResolveFolder(ctx context.Context, path string) (types.Folder, error) {
	segments := SplitFolderPath(path)

	var level []types.Folder
	if shortcut, ok := WellKnownFolders[strings.ToLower(segments[0])]; ok {
		if len(segments) == 1 {
			return c.GetFolder(ctx, shortcut)
		}
		children, err := c.ChildFolders(ctx, shortcut)
		if err != nil {
			return types.Folder{}, err
		}
		level = children
		segments = segments[1:]
	} else {
		children, err := c.ChildFolders(ctx, rootFolder)
		if err != nil {
			return types.Folder{}, err
		}
		if len(children) == 0 {
			return types.Folder{}, fmt.Errorf("no folders found under Top Of Information Store folder")
		}
		level = children
	}

	for i, name := range segments {
		found, ok := matchFolder(level, name)
		if !ok {
			return types.Folder{}, &FolderNotFoundError{Path: path}
		}
		if i == len(segments)-1 {
			return found, nil
		}
		children, err := c.ChildFolders(ctx, found.ID)
		if err != nil {
			return types.Folder{}, err
		}
		level = children
	}

	// Unreachable: segments always has at least one element.
	return types.Folder{}, &FolderNotFoundError{Path: path}
}

func matchFolder(folders []types.Folder, name string) (types.Folder, bool) {
	for _, f := range folders {
		if strings.EqualFold(f.DisplayName, name) || f.ID == name {
			return f, true
		}
	}
	return types.Folder{}, false
}

// GetFolder fetches a single folder by id or well-known shortcut.
func (c *Client) GetFolder(ctx context.Context, id string) (types.Folder, error) {
	var folder types.Folder
	if err := c.Get(ctx, c.userPath("mailFolders", id), &folder); err != nil {
		return types.Folder{}, fmt.Errorf("get folder %s: %w", id, err)
	}
	if folder.ID == "" {
		return types.Folder{}, fmt.Errorf("no info found for folder %s", id)
	}
	return folder, nil
}

// ChildFolders lists the direct children of a folder.
func (c *Client) ChildFolders(ctx context.Context, id string) ([]types.Folder, error) {
	path := fmt.Sprintf("%s?$top=%d", c.userPath("mailFolders", id, "childFolders"), childFolderTop)

	var resp struct {
		Value []types.Folder `json:"value"`
	}
	if err := c.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list child folders of %s: %w", id, err)
	}
	return resp.Value, nil
}
