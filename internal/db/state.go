package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/daviddao/mailwatch/internal/types"
)

// GetState decodes the JSON stored under key into v. It reports false when
// the key has never been written.
func (d *DB) GetState(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := d.conn.GetContext(ctx, &raw, "SELECT value FROM state WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// PutState replaces the JSON stored under key.
func (d *DB) PutState(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), Now(),
	)
	if err != nil {
		return fmt.Errorf("write state %s: %w", key, err)
	}
	return nil
}

// DeleteState removes key.
func (d *DB) DeleteState(ctx context.Context, key string) error {
	_, err := d.conn.ExecContext(ctx, "DELETE FROM state WHERE key = ?", key)
	return err
}

// MailboxState scopes the cursor and credential of one mailbox.
type MailboxState struct {
	db      *DB
	mailbox string
}

// Mailbox returns the state of mailbox.
func (d *DB) Mailbox(mailbox string) *MailboxState {
	return &MailboxState{db: d, mailbox: mailbox}
}

func (s *MailboxState) cursorKey() string     { return "cursor:" + s.mailbox }
func (s *MailboxState) credentialKey() string { return "credential:" + s.mailbox }

// LoadCursor returns the last saved cursor, or the zero cursor.
func (s *MailboxState) LoadCursor(ctx context.Context) (types.FetchCursor, error) {
	var cursor types.FetchCursor
	if _, err := s.db.GetState(ctx, s.cursorKey(), &cursor); err != nil {
		return types.FetchCursor{}, err
	}
	return cursor, nil
}

// SaveCursor replaces the saved cursor.
func (s *MailboxState) SaveCursor(ctx context.Context, cursor types.FetchCursor) error {
	return s.db.PutState(ctx, s.cursorKey(), cursor)
}

// ResetCursor forgets the saved cursor so the next fetch starts over.
func (s *MailboxState) ResetCursor(ctx context.Context) error {
	return s.db.DeleteState(ctx, s.cursorKey())
}

// LoadCredential returns the cached credential, or nil when none is stored.
func (s *MailboxState) LoadCredential(ctx context.Context) (*types.Credential, error) {
	var cred types.Credential
	ok, err := s.db.GetState(ctx, s.credentialKey(), &cred)
	if err != nil || !ok {
		return nil, err
	}
	return &cred, nil
}

// SaveCredential replaces the cached credential.
func (s *MailboxState) SaveCredential(ctx context.Context, cred types.Credential) error {
	return s.db.PutState(ctx, s.credentialKey(), cred)
}
