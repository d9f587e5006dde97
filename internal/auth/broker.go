package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/types"
)

const (
	// DefaultExpiresIn is used when the broker omits expires_in.
	DefaultExpiresIn = 3595

	// expiryBuffer shortens the validity window reported by the broker.
	expiryBuffer = 5

	authFailureMsg = "Error in authentication. Try checking the credentials you entered."
)

// AuthenticationError is returned when the token broker rejects an exchange
// or answers with something that is not a token.
type AuthenticationError struct {
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthenticationError.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// brokerRequest is the body POSTed to the broker.
type brokerRequest struct {
	AppName        string `json:"app_name"`
	RegistrationID string `json:"registration_id"`
	EncryptedToken string `json:"encrypted_token"`
}

// brokerResponse covers both the success and the error envelopes.
type brokerResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    *int64 `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`

	Message string `json:"message"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
}

// Broker exchanges an encrypted refresh token for an access token.
type Broker struct {
	URL            string
	AppName        string
	RegistrationID string
	EncryptionKey  string

	HTTPClient *http.Client
	Clock      func() time.Time
	Log        logrus.FieldLogger
}

// Exchange performs one round trip to the broker. It never retries.
func (b *Broker) Exchange(ctx context.Context, refreshToken string) (types.Credential, error) {
	now := b.now()

	encrypted, err := Encrypt(refreshToken, b.EncryptionKey, now)
	if err != nil {
		return types.Credential{}, fmt.Errorf("encrypt refresh token: %w", err)
	}

	data, err := json.Marshal(brokerRequest{
		AppName:        b.AppName,
		RegistrationID: b.RegistrationID,
		EncryptedToken: encrypted,
	})
	if err != nil {
		return types.Credential{}, fmt.Errorf("marshal broker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(data))
	if err != nil {
		return types.Credential{}, fmt.Errorf("create broker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client().Do(req)
	if err != nil {
		return types.Credential{}, fmt.Errorf("post to token broker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Credential{}, fmt.Errorf("read broker response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b.log().WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Info("authentication failure from token broker")
		return types.Credential{}, &AuthenticationError{
			StatusCode: resp.StatusCode,
			Message:    authFailureMessage(body),
		}
	}

	if execID := resp.Header.Get("Function-Execution-Id"); execID != "" {
		b.log().WithField("execution_id", execID).Info("token broker execution")
	}

	var parsed brokerResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return types.Credential{}, &AuthenticationError{
			StatusCode: resp.StatusCode,
			Message: "There was a problem in retrieving an updated access token. " +
				"The response from the token broker did not contain the expected content (malformed token response).",
		}
	}

	expiresIn := int64(DefaultExpiresIn)
	if parsed.ExpiresIn != nil {
		expiresIn = *parsed.ExpiresIn
	}
	if expiresIn-expiryBuffer > 0 {
		expiresIn -= expiryBuffer
	}

	rotated := parsed.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}

	return types.Credential{
		AccessToken:  parsed.AccessToken,
		ValidUntil:   now.Unix() + expiresIn,
		RefreshToken: rotated,
	}, nil
}

// authFailureMessage appends whatever diagnostic the broker sent back.
func authFailureMessage(body []byte) string {
	var parsed brokerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return authFailureMsg
	}

	serverMsg := parsed.Message
	if serverMsg == "" && parsed.Title != "" {
		serverMsg = fmt.Sprintf("%s. %s", parsed.Title, parsed.Detail)
	}
	if serverMsg == "" {
		return authFailureMsg
	}
	return authFailureMsg + " Server message: " + serverMsg
}

func (b *Broker) client() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b *Broker) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

func (b *Broker) log() logrus.FieldLogger {
	if b.Log != nil {
		return b.Log
	}
	return logrus.StandardLogger()
}
