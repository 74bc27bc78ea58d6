package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Field names of a relay request, shared by the JSON and multipart encodings.
const (
	FieldModel          = "model"
	FieldPrompt         = "prompt"
	FieldImage          = "image"
	FieldAudioBase64    = "audioBase64"
	FieldWebhookID      = "webhookId"
	FieldConversationID = "conversationId"
)

// RelayRequest is the logical payload sent to an n8n workflow.
type RelayRequest struct {
	Model          string
	Prompt         string
	Image          string
	AudioBase64    string
	WebhookID      string
	ConversationID string
	// Extra holds any other fields, forwarded as-is.
	Extra map[string]any
}

// Fields returns the populated scalar fields in a stable order. Empty values are omitted.
func (r RelayRequest) Fields() []Field {
	candidates := []Field{
		{Name: FieldModel, Value: r.Model},
		{Name: FieldPrompt, Value: r.Prompt},
		{Name: FieldImage, Value: r.Image},
		{Name: FieldAudioBase64, Value: r.AudioBase64},
		{Name: FieldWebhookID, Value: r.WebhookID},
		{Name: FieldConversationID, Value: r.ConversationID},
	}
	fields := make([]Field, 0, len(candidates))
	for _, f := range candidates {
		if f.Value != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

type Field struct {
	Name  string
	Value string
}

func (r RelayRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		if v == nil {
			continue
		}
		out[k] = v
	}
	for _, f := range r.Fields() {
		out[f.Name] = f.Value
	}
	return json.Marshal(out)
}

func (r *RelayRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RelayRequest{}
	targets := map[string]*string{
		FieldModel:          &r.Model,
		FieldPrompt:         &r.Prompt,
		FieldImage:          &r.Image,
		FieldAudioBase64:    &r.AudioBase64,
		FieldWebhookID:      &r.WebhookID,
		FieldConversationID: &r.ConversationID,
	}
	for k, v := range raw {
		target, known := targets[k]
		if !known {
			if string(v) == "null" {
				continue
			}
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = value
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*target = s
	}
	return nil
}

// scalarString accepts strings, numbers and null.
func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return "", nil
	}
	switch v[0] {
	case '"':
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	case '{', '[', 't', 'f':
		return "", errors.New("expected a string or number")
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

type RelayResponseKind string

const (
	RelayResponseArrayWrapped RelayResponseKind = "array"
	RelayResponseDirect       RelayResponseKind = "direct"
)

// RelayResponse is the decoded body returned by a workflow. Workflows reply
// either with a bare object or with an array whose first element carries the fields.
type RelayResponse struct {
	Kind RelayResponseKind
	// Image is empty when the workflow did not return one.
	Image string
	// HasMessages is true when the workflow returned a message list, even an empty one.
	HasMessages bool
	Messages    []ChatMessage
}

type relayResponseFields struct {
	Image    json.RawMessage `json:"image"`
	Messages json.RawMessage `json:"messages"`
}

func (r *RelayResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("relay response: empty body")
	}
	*r = RelayResponse{}
	var fields relayResponseFields
	switch data[0] {
	case '[':
		r.Kind = RelayResponseArrayWrapped
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("relay response: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if err := json.Unmarshal(items[0], &fields); err != nil {
			return fmt.Errorf("relay response: first element: %w", err)
		}
	case '{':
		r.Kind = RelayResponseDirect
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("relay response: %w", err)
		}
	default:
		return errors.New("relay response: expected a JSON object or array")
	}
	if len(fields.Image) > 0 && string(fields.Image) != "null" {
		if err := json.Unmarshal(fields.Image, &r.Image); err != nil {
			return fmt.Errorf("relay response: image must be a string: %w", err)
		}
	}
	if len(fields.Messages) > 0 && string(fields.Messages) != "null" {
		if err := json.Unmarshal(fields.Messages, &r.Messages); err != nil {
			return fmt.Errorf("relay response: messages: %w", err)
		}
		r.HasMessages = true
	}
	return nil
}

func (r RelayResponse) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if r.Image != "" {
		out["image"] = r.Image
	}
	if r.HasMessages {
		msgs := r.Messages
		if msgs == nil {
			msgs = []ChatMessage{}
		}
		out["messages"] = msgs
	}
	if r.Kind == RelayResponseArrayWrapped {
		return json.Marshal([]any{out})
	}
	return json.Marshal(out)
}
