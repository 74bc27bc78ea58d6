package main

import (
	"context"
	"fmt"

	"github.com/a-h/agentui/capture"
	"github.com/a-h/agentui/client"
	"github.com/a-h/agentui/models"
)

type CompleteCommand struct {
	ServerURL string   `help:"The URL of the agentui server." env:"AGENTUI_URL" default:"http://localhost:9020"`
	APIKey    string   `help:"The API key for the agentui server." env:"AGENTUI_API_KEY" default:""`
	Images    []string `help:"Image files to include." type:"existingfile" name:"image"`
	Prompt    string   `arg:"" optional:"" help:"The prompt to complete."`
	LogLevel  string   `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c CompleteCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	cl := client.New(c.ServerURL, c.APIKey).WithLogger(log)

	req := models.CompletionsPostRequest{
		Prompt: c.Prompt,
	}
	for _, name := range c.Images {
		dataURL, err := capture.LoadImage(name)
		if err != nil {
			return fmt.Errorf("failed to load image %q: %w", name, err)
		}
		req.Images = append(req.Images, dataURL)
	}

	resp, err := cl.CompletionsPost(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(resp.Output)
	return nil
}
