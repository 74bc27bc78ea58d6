package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// HumanMarker is the element of a serialised message id that identifies
// a message authored by the user.
const HumanMarker = "HumanMessage"

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// ChatMessage is the LangChain serialised message shape emitted by n8n.
type ChatMessage struct {
	LC     int           `json:"lc"`
	Type   string        `json:"type"`
	ID     []string      `json:"id"`
	Kwargs MessageKwargs `json:"kwargs"`
}

// Role is derived from the id path only, never from list position.
func (m ChatMessage) Role() Role {
	if slices.Contains(m.ID, HumanMarker) {
		return RoleHuman
	}
	return RoleAI
}

func (m ChatMessage) Content() string {
	return m.Kwargs.Content
}

func (m ChatMessage) ImageURL() string {
	return m.Kwargs.ResponseMetadata.ImageURL
}

// WithImageURL returns a copy of the message with the image URL set.
func (m ChatMessage) WithImageURL(url string) ChatMessage {
	m.Kwargs.ResponseMetadata = m.Kwargs.ResponseMetadata.clone()
	m.Kwargs.ResponseMetadata.ImageURL = url
	return m
}

func NewHumanMessage(content string) ChatMessage {
	return newMessage("HumanMessage", content, "")
}

func NewAIMessage(content, imageURL string) ChatMessage {
	return newMessage("AIMessage", content, imageURL)
}

func newMessage(kind, content, imageURL string) ChatMessage {
	return ChatMessage{
		LC:   1,
		Type: "constructor",
		ID:   []string{"langchain_core", "messages", kind},
		Kwargs: MessageKwargs{
			Content:          content,
			AdditionalKwargs: map[string]any{},
			ResponseMetadata: ResponseMetadata{ImageURL: imageURL},
		},
	}
}

type MessageKwargs struct {
	Content          string           `json:"content"`
	ToolCalls        []any            `json:"tool_calls,omitempty"`
	InvalidToolCalls []any            `json:"invalid_tool_calls,omitempty"`
	AdditionalKwargs map[string]any   `json:"additional_kwargs"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

func (k *MessageKwargs) UnmarshalJSON(data []byte) error {
	var raw struct {
		Content          json.RawMessage  `json:"content"`
		ToolCalls        []any            `json:"tool_calls"`
		InvalidToolCalls []any            `json:"invalid_tool_calls"`
		AdditionalKwargs map[string]any   `json:"additional_kwargs"`
		ResponseMetadata ResponseMetadata `json:"response_metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := decodeContent(raw.Content)
	if err != nil {
		return err
	}
	*k = MessageKwargs{
		Content:          content,
		ToolCalls:        raw.ToolCalls,
		InvalidToolCalls: raw.InvalidToolCalls,
		AdditionalKwargs: raw.AdditionalKwargs,
		ResponseMetadata: raw.ResponseMetadata,
	}
	if k.AdditionalKwargs == nil {
		k.AdditionalKwargs = map[string]any{}
	}
	return nil
}

// decodeContent accepts either a plain string or a list of text parts.
func decodeContent(data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", errors.New("message content must be a string or a list of text parts")
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// ResponseMetadata keeps unknown keys so that messages round-trip unchanged.
type ResponseMetadata struct {
	ImageURL string
	Extra    map[string]json.RawMessage
}

func (m ResponseMetadata) clone() ResponseMetadata {
	if m.Extra == nil {
		return m
	}
	extra := make(map[string]json.RawMessage, len(m.Extra))
	for k, v := range m.Extra {
		extra[k] = v
	}
	m.Extra = extra
	return m
}

func (m ResponseMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.ImageURL != "" {
		v, err := json.Marshal(m.ImageURL)
		if err != nil {
			return nil, err
		}
		out["image_url"] = v
	}
	return json.Marshal(out)
}

func (m *ResponseMetadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = ResponseMetadata{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("response_metadata: %w", err)
	}
	*m = ResponseMetadata{}
	if v, ok := raw["image_url"]; ok {
		if string(v) != "null" {
			if err := json.Unmarshal(v, &m.ImageURL); err != nil {
				return fmt.Errorf("response_metadata: image_url must be a string: %w", err)
			}
		}
		delete(raw, "image_url")
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
