package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/payload"
	"github.com/a-h/jsonapi"
)

func New(baseURL, apiKey string) Client {
	return Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		httpClient: &http.Client{},
	}
}

type Client struct {
	baseURL    string
	apiKey     string
	log        *slog.Logger
	httpClient *http.Client
}

func (c Client) WithLogger(log *slog.Logger) Client {
	c.log = log
	return c
}

func (c Client) WithHTTPClient(httpClient *http.Client) Client {
	c.httpClient = httpClient
	return c
}

// ResponseError is returned when the server responds with a non-2xx status.
type ResponseError struct {
	Status  int
	Message string
	Detail  string
}

func (e ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded with status %d", e.Status)
	}
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func responseError(status int, body string) ResponseError {
	var envelope models.ErrorResponse
	if err := json.Unmarshal([]byte(body), &envelope); err == nil {
		return ResponseError{Status: status, Message: envelope.Error, Detail: envelope.Detail}
	}
	return ResponseError{Status: status}
}

func convertError(err error) error {
	var ise jsonapi.InvalidStatusError
	if errors.As(err, &ise) {
		return responseError(ise.Status, ise.Body)
	}
	var isep *jsonapi.InvalidStatusError
	if errors.As(err, &isep) && isep != nil {
		return responseError(isep.Status, isep.Body)
	}
	return err
}

// RelayPost sends the request as a multipart form, with images and audio as binary parts.
func (c Client) RelayPost(ctx context.Context, req models.RelayRequest) (resp models.RelayResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("relay").String()
	if err != nil {
		return resp, err
	}
	body, contentType, err := payload.EncodeMultipart(c.log, req)
	if err != nil {
		return resp, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", c.apiKey)
	}
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return resp, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resp, responseError(res.StatusCode, string(respBody))
	}
	if err = json.Unmarshal(respBody, &resp); err != nil {
		return resp, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// RelayPostJSON sends the request as JSON, with images as data URLs.
func (c Client) RelayPostJSON(ctx context.Context, req models.RelayRequest) (resp models.RelayResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("relay").String()
	if err != nil {
		return resp, err
	}
	resp, err = jsonapi.Post[models.RelayRequest, models.RelayResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	return resp, convertError(err)
}

func (c Client) CompletionsPost(ctx context.Context, req models.CompletionsPostRequest) (resp models.CompletionsPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("completions").String()
	if err != nil {
		return resp, err
	}
	resp, err = jsonapi.Post[models.CompletionsPostRequest, models.CompletionsPostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	return resp, convertError(err)
}

func (c Client) RealtimeSessionPost(ctx context.Context, req models.RealtimeSessionPostRequest) (session json.RawMessage, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("realtime-session").String()
	if err != nil {
		return nil, err
	}
	session, err = jsonapi.Post[models.RealtimeSessionPostRequest, json.RawMessage](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	return session, convertError(err)
}
