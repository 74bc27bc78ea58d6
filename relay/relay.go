// Package relay forwards encoded payloads to n8n webhooks.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/config"
	"github.com/a-h/jsonapi"
)

const (
	Service          = "n8n"
	DefaultWebhookID = "conversation"
)

func New(log *slog.Logger, cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return Client{
		log:        log,
		baseURL:    cfg.N8NBase(),
		segment:    cfg.WebhookSegment(),
		username:   cfg.N8NUsername,
		password:   cfg.N8NPassword,
		timeout:    cfg.RelayTimeout,
		httpClient: httpClient,
	}
}

type Client struct {
	log        *slog.Logger
	baseURL    string
	segment    string
	username   string
	password   string
	timeout    time.Duration
	httpClient *http.Client
}

// URL returns the webhook URL for the given id. Ids that could escape the webhook path
// are rejected with a ValidationError.
func (c Client) URL(webhookID string) (string, error) {
	if webhookID == "" {
		webhookID = DefaultWebhookID
	}
	if err := validateWebhookID(webhookID); err != nil {
		return "", err
	}
	return jsonapi.URL(c.baseURL).Path(c.segment, webhookID).String()
}

func validateWebhookID(id string) error {
	invalid := apierr.ValidationError{Message: fmt.Sprintf("invalid webhook id %q", id)}
	if strings.ContainsAny(id, `?#%\`) {
		return invalid
	}
	for _, segment := range strings.Split(id, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return invalid
		}
	}
	return nil
}

// Forward posts the body to the webhook and returns the JSON response unchanged.
func (c Client) Forward(ctx context.Context, webhookID, contentType string, body io.Reader) (json.RawMessage, error) {
	url, err := c.URL(webhookID)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid webhook URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.SetBasicAuth(c.username, c.password)

	start := time.Now()
	c.log.Debug("forwarding to webhook", slog.String("url", url))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	c.log.Info("webhook responded", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.Duration("duration", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.UpstreamError{Service: Service, Status: resp.StatusCode, Body: respBody}
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("relay: %s returned a response that is not valid JSON", Service)
	}
	return respBody, nil
}

// classify separates the caller-side timeout from other transport failures.
func (c Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.TimeoutError{Service: Service, After: c.timeout}
	}
	return apierr.TransportError{Service: Service, Err: err}
}
