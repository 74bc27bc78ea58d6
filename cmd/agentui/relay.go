package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/a-h/agentui/capture"
	"github.com/a-h/agentui/client"
	"github.com/a-h/agentui/config"
	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/normalize"
	"github.com/a-h/agentui/session"
)

type relayFunc func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error)

func (f relayFunc) RelayPost(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
	return f(ctx, req)
}

func newRelayer(cl client.Client, useJSON bool) session.Relayer {
	if useJSON {
		return relayFunc(cl.RelayPostJSON)
	}
	return relayFunc(cl.RelayPost)
}

type RelayCommand struct {
	ServerURL    string `help:"The URL of the agentui server." env:"AGENTUI_URL" default:"http://localhost:9020"`
	APIKey       string `help:"The API key for the agentui server." env:"AGENTUI_API_KEY" default:""`
	Model        string `help:"The model name sent with the message." env:"CHAT_MODEL" default:"gpt-4.1"`
	WebhookID    string `help:"The n8n webhook to send the message to." env:"WEBHOOK_ID" default:"conversation"`
	Environment  string `help:"The deployment environment, used to pick the conversation id range." env:"ENVIRONMENT" default:"development"`
	Image        string `help:"An image file to attach." type:"existingfile" default:""`
	Audio        string `help:"An MP3 file to send as a voice message instead of the prompt." type:"existingfile" default:""`
	JSON         bool   `help:"Send the message as JSON instead of a multipart form."`
	ScrapeImages bool   `help:"Extract image URLs embedded in AI message text when the workflow does not return one."`
	Prompt       string `arg:"" optional:"" help:"The message to send."`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c RelayCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	cl := client.New(c.ServerURL, c.APIKey).WithLogger(log)
	sess := session.New(session.Config{
		Model:              c.Model,
		WebhookID:          c.WebhookID,
		BaseConversationID: config.Config{Environment: c.Environment}.BaseConversationID(),
		Normalize:          normalize.Options{ScrapeEmbeddedImages: c.ScrapeImages},
	})
	relayer := newRelayer(cl, c.JSON)

	if c.Audio != "" {
		audio, err := os.ReadFile(c.Audio)
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
		}
		sub, ok := sess.SubmitAudio(base64.StdEncoding.EncodeToString(audio))
		if !ok {
			return fmt.Errorf("audio file %q is empty", c.Audio)
		}
		if err = sess.Deliver(ctx, relayer, sub); err != nil {
			return err
		}
		return printMessages(sess.Messages())
	}

	if c.Image != "" {
		dataURL, err := capture.LoadImage(c.Image)
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		sess.AttachImage(dataURL)
	}
	sess.SetInput(c.Prompt)
	if err = sess.Send(ctx, relayer); err != nil {
		return err
	}
	return printMessages(sess.Messages())
}

func printMessages(msgs []models.ChatMessage) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(msgs)
}
