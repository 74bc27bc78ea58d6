package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/models"
	"github.com/google/go-cmp/cmp"
)

var log = slog.New(slog.NewJSONHandler(io.Discard, nil))

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

type part struct {
	FileName    string
	ContentType string
	Data        string
}

func readParts(t *testing.T, body *bytes.Buffer, contentType string) map[string]part {
	t.Helper()
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("invalid content type %q: %v", contentType, err)
	}
	r := multipart.NewReader(body, params["boundary"])
	parts := map[string]part{}
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to read part: %v", err)
		}
		data, err := io.ReadAll(p)
		if err != nil {
			t.Fatalf("failed to read part data: %v", err)
		}
		pt := part{FileName: p.FileName(), Data: string(data)}
		if pt.FileName != "" {
			pt.ContentType = p.Header.Get("Content-Type")
		}
		parts[p.FormName()] = pt
	}
	return parts
}

func TestEncodeJSON(t *testing.T) {
	pngData := pngBytes(t)
	pngBase64 := base64.StdEncoding.EncodeToString(pngData)

	tests := []struct {
		name     string
		req      models.RelayRequest
		expected map[string]any
	}{
		{
			name: "non data URL images are untouched",
			req: models.RelayRequest{
				Model: "gpt-4.1",
				Image: "https://example.com/cat.png",
			},
			expected: map[string]any{
				"model": "gpt-4.1",
				"image": "https://example.com/cat.png",
			},
		},
		{
			name: "empty fields are omitted",
			req: models.RelayRequest{
				Prompt:         "hello",
				ConversationID: "1000",
				Extra:          map[string]any{"removed": nil},
			},
			expected: map[string]any{
				"prompt":         "hello",
				"conversationId": "1000",
			},
		},
		{
			name: "declared image type is kept",
			req: models.RelayRequest{
				Image: "data:image/png;base64," + pngBase64,
			},
			expected: map[string]any{
				"image": "data:image/png;base64," + pngBase64,
			},
		},
		{
			name: "non image type is replaced by the sniffed type",
			req: models.RelayRequest{
				Image: "data:application/octet-stream;base64," + pngBase64,
			},
			expected: map[string]any{
				"image": "data:image/png;base64," + pngBase64,
			},
		},
		{
			name: "unknown content falls back to jpeg",
			req: models.RelayRequest{
				Image: "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString([]byte("not an image")),
			},
			expected: map[string]any{
				"image": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not an image")),
			},
		},
		{
			name: "undecodable images are dropped",
			req: models.RelayRequest{
				Prompt: "hello",
				Image:  "data:image/png;base64,!!!",
			},
			expected: map[string]any{
				"prompt": "hello",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeJSON(log, tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var actual map[string]any
			if err := json.Unmarshal(b, &actual); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestEncodeMultipart(t *testing.T) {
	pngData := pngBytes(t)
	audio := []byte("ID3 fake mp3 bytes")

	tests := []struct {
		name     string
		req      models.RelayRequest
		expected map[string]part
	}{
		{
			name: "scalar fields are string parts",
			req: models.RelayRequest{
				Model:          "gpt-4.1",
				Prompt:         "hello",
				WebhookID:      "conversation",
				ConversationID: "1000",
			},
			expected: map[string]part{
				"model":          {Data: "gpt-4.1"},
				"prompt":         {Data: "hello"},
				"webhookId":      {Data: "conversation"},
				"conversationId": {Data: "1000"},
			},
		},
		{
			name: "data URL images become a binary part",
			req: models.RelayRequest{
				Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData),
			},
			expected: map[string]part{
				"image": {FileName: "image.jpg", ContentType: "image/png", Data: string(pngData)},
			},
		},
		{
			name: "other images stay as strings",
			req: models.RelayRequest{
				Image: "https://example.com/cat.png",
			},
			expected: map[string]part{
				"image": {Data: "https://example.com/cat.png"},
			},
		},
		{
			name: "raw base64 audio becomes an mp3 part",
			req: models.RelayRequest{
				AudioBase64: base64.StdEncoding.EncodeToString(audio),
			},
			expected: map[string]part{
				"audioFile": {FileName: "audio.mp3", ContentType: "audio/mpeg", Data: string(audio)},
			},
		},
		{
			name: "data URL audio becomes an mp3 part",
			req: models.RelayRequest{
				AudioBase64: "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(audio),
			},
			expected: map[string]part{
				"audioFile": {FileName: "audio.mp3", ContentType: "audio/mpeg", Data: string(audio)},
			},
		},
		{
			name: "structured extras are stringified",
			req: models.RelayRequest{
				Extra: map[string]any{
					"options": map[string]any{"detail": "high"},
					"tags":    []any{"a", "b"},
					"note":    "plain",
				},
			},
			expected: map[string]part{
				"options": {Data: `{"detail":"high"}`},
				"tags":    {Data: `["a","b"]`},
				"note":    {Data: "plain"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType, err := EncodeMultipart(log, tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
				t.Fatalf("unexpected content type %q", contentType)
			}
			actual := readParts(t, body, contentType)
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestEncodeMultipartRejectsInvalidAudio(t *testing.T) {
	_, _, err := EncodeMultipart(log, models.RelayRequest{AudioBase64: "%%%"})
	var ve apierr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCopyMultipartSkipsFields(t *testing.T) {
	body, contentType, err := EncodeMultipart(log, models.RelayRequest{
		Model:       "gpt-4.1",
		Prompt:      "hello",
		WebhookID:   "images",
		AudioBase64: base64.StdEncoding.EncodeToString([]byte("audio")),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, params, _ := mime.ParseMediaType(contentType)
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("failed to read form: %v", err)
	}
	defer form.RemoveAll()

	copied, copiedContentType, err := CopyMultipart(form, models.FieldWebhookID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := map[string]part{
		"model":     {Data: "gpt-4.1"},
		"prompt":    {Data: "hello"},
		"audioFile": {FileName: "audio.mp3", ContentType: "audio/mpeg", Data: "audio"},
	}
	if diff := cmp.Diff(expected, readParts(t, copied, copiedContentType)); diff != "" {
		t.Error(diff)
	}
}
