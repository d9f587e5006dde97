// Package graph is a thin client for the v1 mail REST API: folder lookup,
// message listing and the mail actions mailwatch exposes.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the v1 endpoint of the hosted mail API.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0/"

// APIError is returned for any response outside the accepted status codes.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("mail API error (%d) on %s %s: %s: %s", e.StatusCode, e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// IsAPIError reports whether err wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to one mailbox. Authentication is the job of the
// http.Client's transport; Client itself never sets Authorization.
type Client struct {
	baseURL    string
	mailbox    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient creates a client for mailbox. A nil httpClient uses
// http.DefaultClient and a nil log uses the logrus standard logger.
func NewClient(baseURL, mailbox string, httpClient *http.Client, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		mailbox:    mailbox,
		httpClient: httpClient,
		log:        log,
	}
}

// Mailbox returns the mailbox address the client acts on.
func (c *Client) Mailbox() string {
	return c.mailbox
}

// userPath joins segments under users/{mailbox}, escaping each one.
func (c *Client) userPath(segments ...string) string {
	parts := []string{"users", url.PathEscape(c.mailbox)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// Get performs a GET and decodes the JSON response into result.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(body, result)
}

// Post performs a POST with a JSON body and decodes the response, if any,
// into result. result may be nil for endpoints answering 202 or 204.
func (c *Client) Post(ctx context.Context, path string, payload any, result any) error {
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return decode(body, result)
}

// GetRaw performs a GET and returns the body untouched.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("mail API request")

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return respBody, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
	var env errorEnvelope
	if json.Unmarshal(respBody, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(respBody))
	}
	return nil, apiErr
}

func decode(body []byte, result any) error {
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// escapeQuery escapes a query value using %20 for spaces, which the API
// accepts everywhere; '+' is not reliably treated as a space in $filter.
func escapeQuery(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
