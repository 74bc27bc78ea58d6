package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/a-h/agentui/client"
	"github.com/a-h/agentui/models"
)

type SessionCommand struct {
	ServerURL string `help:"The URL of the agentui server." env:"AGENTUI_URL" default:"http://localhost:9020"`
	APIKey    string `help:"The API key for the agentui server." env:"AGENTUI_API_KEY" default:""`
	Model     string `help:"The realtime model, the server default is used if unset." default:""`
	Voice     string `help:"The realtime voice, the server default is used if unset." default:""`
	LogLevel  string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c SessionCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	cl := client.New(c.ServerURL, c.APIKey).WithLogger(log)

	descriptor, err := cl.RealtimeSessionPost(ctx, models.RealtimeSessionPostRequest{
		Model: c.Model,
		Voice: c.Voice,
	})
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err = json.Indent(&out, descriptor, "", "  "); err != nil {
		return fmt.Errorf("failed to format session: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}
