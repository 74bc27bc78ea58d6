// Package modelproxy forwards completion and realtime session requests to OpenAI.
package modelproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/config"
	"github.com/a-h/agentui/models"
	"github.com/a-h/jsonapi"
	"github.com/sashabaranov/go-openai"
)

const (
	Service = "openai"

	DefaultRealtimeModel = "gpt-4o"
	DefaultRealtimeVoice = "alloy"
)

// Completer is the subset of openai.Client used by the proxy.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewOpenAIClient(cfg config.Config) *openai.Client {
	c := openai.DefaultConfig(cfg.OpenAIAPIKey)
	c.BaseURL = cfg.OpenAIBase()
	return openai.NewClientWithConfig(c)
}

func New(log *slog.Logger, cfg config.Config, completer Completer) Proxy {
	return Proxy{
		log:       log,
		completer: completer,
		model:     cfg.CompletionModel,
		baseURL:   cfg.OpenAIBase(),
		apiKey:    cfg.OpenAIAPIKey,
	}
}

type Proxy struct {
	log       *slog.Logger
	completer Completer
	model     string
	baseURL   string
	apiKey    string
}

var ErrMissingInput = apierr.ValidationError{Message: "Missing input"}

// Complete sends the prompt followed by each image as a single user message and returns the output text.
func (p Proxy) Complete(ctx context.Context, prompt string, images []string) (output string, err error) {
	hasText := strings.TrimSpace(prompt) != ""
	if !hasText && len(images) == 0 {
		return "", ErrMissingInput
	}
	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	if hasText {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		})
	}
	for i, image := range images {
		if !strings.HasPrefix(image, "data:image/") {
			return "", apierr.ValidationError{Message: fmt.Sprintf("Image %d must be a data:image/ URL", i)}
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    image,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	p.log.Debug("requesting completion", slog.String("model", p.model), slog.Int("images", len(images)))
	resp, err := p.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
	})
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("modelproxy: %s returned no choices", Service)
	}
	return resp.Choices[0].Message.Content, nil
}

// upstreamError keeps the upstream status and error object so that handlers can pass them through.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		body, _ := json.Marshal(map[string]any{"error": apiErr})
		return apierr.UpstreamError{Service: Service, Status: apiErr.HTTPStatusCode, Body: body}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body, _ := json.Marshal(models.ErrorResponse{Error: reqErr.Error()})
		return apierr.UpstreamError{Service: Service, Status: reqErr.HTTPStatusCode, Body: body}
	}
	return fmt.Errorf("modelproxy: completion failed: %w", err)
}

// CreateRealtimeSession returns the session descriptor JSON exactly as OpenAI sent it.
func (p Proxy) CreateRealtimeSession(ctx context.Context, req models.RealtimeSessionPostRequest) (json.RawMessage, error) {
	if req.Model == "" {
		req.Model = DefaultRealtimeModel
	}
	if req.Voice == "" {
		req.Voice = DefaultRealtimeVoice
	}
	url, err := jsonapi.URL(p.baseURL).Path("realtime", "sessions").String()
	if err != nil {
		return nil, fmt.Errorf("modelproxy: invalid realtime session URL: %w", err)
	}
	resp, err := jsonapi.Post[models.RealtimeSessionPostRequest, json.RawMessage](ctx, url, req,
		jsonapi.WithRequestHeader("Authorization", "Bearer "+p.apiKey))
	if err != nil {
		if status, body, ok := invalidStatus(err); ok {
			return nil, apierr.UpstreamError{Service: Service, Status: status, Body: []byte(body)}
		}
		return nil, apierr.TransportError{Service: Service, Err: err}
	}
	return resp, nil
}

func invalidStatus(err error) (status int, body string, ok bool) {
	var ise jsonapi.InvalidStatusError
	if errors.As(err, &ise) {
		return ise.Status, ise.Body, true
	}
	var isep *jsonapi.InvalidStatusError
	if errors.As(err, &isep) && isep != nil {
		return isep.Status, isep.Body, true
	}
	return 0, "", false
}
