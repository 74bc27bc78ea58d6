// Package config holds the settings shared by the relay server and its clients.
// Values are populated once at startup by kong from flags and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	N8NBaseURL      string        `help:"The base URL of the n8n instance." env:"N8N_BASE_URL" default:""`
	N8NUsername     string        `help:"The basic auth username for n8n webhooks." env:"N8N_USERNAME" default:""`
	N8NPassword     string        `help:"The basic auth password for n8n webhooks." env:"N8N_PASSWORD" default:""`
	Environment     string        `help:"The deployment environment, production selects the live webhook path." env:"ENVIRONMENT" default:"development"`
	RelayTimeout    time.Duration `help:"How long to wait for a webhook response." env:"RELAY_TIMEOUT" default:"4m"`
	RouteTimeout    time.Duration `help:"The hard cap for a relay route, must exceed the relay timeout." env:"ROUTE_TIMEOUT" default:"5m"`
	OpenAIAPIKey    string        `help:"The OpenAI API key." env:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL   string        `help:"The OpenAI API base URL." env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	CompletionModel string        `help:"The model used for completions." env:"COMPLETION_MODEL" default:"gpt-4.1"`
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

// WebhookSegment is the n8n path segment for the current environment.
func (c Config) WebhookSegment() string {
	if c.Production() {
		return "webhook"
	}
	return "webhook-test"
}

// BaseConversationID keeps conversation ids from colliding across environments.
func (c Config) BaseConversationID() int {
	if c.Production() {
		return 200
	}
	return 1000
}

func (c Config) N8NBase() string {
	return strings.TrimSuffix(c.N8NBaseURL, "/")
}

func (c Config) OpenAIBase() string {
	return strings.TrimSuffix(c.OpenAIBaseURL, "/")
}

func (c Config) Validate() (err error) {
	if c.N8NBaseURL == "" {
		err = errors.Join(err, errors.New("n8n base URL is required"))
	}
	if c.RelayTimeout <= 0 {
		err = errors.Join(err, fmt.Errorf("relay timeout must be positive, got %v", c.RelayTimeout))
	}
	if c.RouteTimeout <= c.RelayTimeout {
		err = errors.Join(err, fmt.Errorf("route timeout %v must exceed relay timeout %v", c.RouteTimeout, c.RelayTimeout))
	}
	return err
}
