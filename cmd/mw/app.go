package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/daviddao/mailwatch/internal/auth"
	"github.com/daviddao/mailwatch/internal/command"
	"github.com/daviddao/mailwatch/internal/config"
	"github.com/daviddao/mailwatch/internal/credential"
	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/incident"
	msync "github.com/daviddao/mailwatch/internal/sync"
)

// credentialStore picks the configured credential backend.
func credentialStore() (auth.CredentialStore, error) {
	switch cfg.CredentialStore {
	case config.StoreKeyring:
		ring, err := credential.Open()
		if err != nil {
			return nil, err
		}
		return credential.NewStore(ring, cfg.Mailbox), nil
	case config.StoreFile:
		return auth.FileStore{Path: cfg.CredentialFile}, nil
	default:
		return store.Mailbox(cfg.Mailbox), nil
	}
}

// baseTransport applies the insecure and proxy settings.
func baseTransport() (http.RoundTripper, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", cfg.Proxy, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	return t, nil
}

// newTokenCache wires the broker and the credential store.
func newTokenCache() (*auth.TokenCache, http.RoundTripper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	creds, err := credentialStore()
	if err != nil {
		return nil, nil, err
	}
	base, err := baseTransport()
	if err != nil {
		return nil, nil, err
	}

	broker := &auth.Broker{
		URL:            cfg.Broker.URL,
		AppName:        cfg.Broker.AppName,
		RegistrationID: cfg.Broker.RegistrationID,
		EncryptionKey:  cfg.Broker.EncKey,
		HTTPClient:     &http.Client{Transport: base, Timeout: cfg.Timeout},
		Log:            logger,
	}
	return auth.NewTokenCache(creds, broker, cfg.RefreshToken), base, nil
}

// newExecutor builds the full action pipeline for the configured mailbox.
func newExecutor(ctx context.Context) (*command.Executor, error) {
	cache, base, err := newTokenCache()
	if err != nil {
		return nil, err
	}
	lookback, err := cfg.Lookback()
	if err != nil {
		return nil, err
	}

	client := graph.NewClient(cfg.BaseURL, cfg.Mailbox, auth.NewHTTPClient(ctx, cache, base, cfg.Timeout), logger)
	mapper := &incident.Mapper{Source: client, Files: store, Log: logger}
	fetcher := &msync.Fetcher{
		Source:     client,
		Mapper:     mapper,
		FolderPath: cfg.Folder,
		Lookback:   lookback,
		Limit:      cfg.FetchLimit,
		Log:        logger,
	}

	return &command.Executor{
		Mailbox: cfg.Mailbox,
		Mail:    client,
		Files:   store,
		Fetcher: fetcher,
		Cursors: store.Mailbox(cfg.Mailbox),
		Sink:    store,
		Log:     logger,
	}, nil
}

// runCommand executes one action and prints its result.
func runCommand(cmd *cobra.Command, c command.Command) error {
	exec, err := newExecutor(cmd.Context())
	if err != nil {
		return err
	}
	res, err := exec.Run(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Kind, err)
	}
	if outputFormat == "text" {
		if !quietFlag {
			fmt.Fprintln(cmd.OutOrStdout(), res.HumanReadable)
		}
		return nil
	}
	return writeStructured(cmd, res)
}

// writeStructured prints v as indented JSON or as YAML. YAML keys follow
// the JSON field names.
func writeStructured(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	y, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = out.Write(y)
	return err
}

// splitList parses a comma separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
