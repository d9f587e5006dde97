// Package credential keeps broker credentials in the system keyring.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/daviddao/mailwatch/internal/types"
)

const serviceName = "mailwatch"

// Open returns the system keyring, falling back to an encrypted file under
// ~/.config/mailwatch/credentials.
func Open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailwatch/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailwatch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store holds one mailbox's credential in a keyring.
type Store struct {
	ring    keyring.Keyring
	mailbox string
}

// NewStore binds a keyring to a mailbox.
func NewStore(ring keyring.Keyring, mailbox string) *Store {
	return &Store{ring: ring, mailbox: mailbox}
}

func (s *Store) key() string { return "credential:" + s.mailbox }

// LoadCredential returns nil, nil when the keyring holds nothing for the
// mailbox.
func (s *Store) LoadCredential(_ context.Context) (*types.Credential, error) {
	item, err := s.ring.Get(s.key())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", s.key(), err)
	}

	var cred types.Credential
	if err := json.Unmarshal(item.Data, &cred); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", s.key(), err)
	}
	return &cred, nil
}

// SaveCredential overwrites the stored credential.
func (s *Store) SaveCredential(_ context.Context, cred types.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	err = s.ring.Set(keyring.Item{
		Key:         s.key(),
		Data:        data,
		Label:       "mailwatch " + s.mailbox,
		Description: "mail API broker credential",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key(), err)
	}
	return nil
}

// Delete removes the stored credential. Removing a missing credential is
// not an error.
func (s *Store) Delete() error {
	err := s.ring.Remove(s.key())
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", s.key(), err)
	}
	return nil
}
