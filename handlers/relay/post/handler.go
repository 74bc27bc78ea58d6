package post

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/auth"
	"github.com/a-h/agentui/handlers"
	"github.com/a-h/agentui/models"
	"github.com/a-h/agentui/payload"
)

const maxMemory = 32 << 20

type Forwarder interface {
	Forward(ctx context.Context, webhookID, contentType string, body io.Reader) (json.RawMessage, error)
}

func New(log *slog.Logger, forwarder Forwarder, routeTimeout time.Duration, maxBodyBytes int64) Handler {
	return Handler{
		log:          log,
		forwarder:    forwarder,
		routeTimeout: routeTimeout,
		maxBodyBytes: maxBodyBytes,
	}
}

type Handler struct {
	log          *slog.Logger
	forwarder    Forwarder
	routeTimeout time.Duration
	maxBodyBytes int64
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := auth.Logger(h.log, r)
	w.Header().Set("Cache-Control", "no-store")
	ctx, cancel := context.WithTimeout(r.Context(), h.routeTimeout)
	defer cancel()

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var webhookID, contentType string
	var body *bytes.Buffer
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			log.Error("failed to parse multipart form", slog.Any("error", err))
			handlers.WriteError(w, "failed to parse multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
		webhookID = r.FormValue(models.FieldWebhookID)
		var err error
		body, contentType, err = payload.CopyMultipart(r.MultipartForm, models.FieldWebhookID)
		if err != nil {
			log.Error("failed to encode multipart form", slog.Any("error", err))
			handlers.WriteError(w, "Failed to process request: "+err.Error(), http.StatusInternalServerError)
			return
		}
	case "application/json":
		var req models.RelayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("failed to decode body", slog.Any("error", err))
			handlers.WriteError(w, "failed to decode body", http.StatusBadRequest)
			return
		}
		webhookID = req.WebhookID
		req.WebhookID = ""
		b, err := payload.EncodeJSON(log, req)
		if err != nil {
			log.Error("failed to encode body", slog.Any("error", err))
			handlers.WriteError(w, "Failed to process request: "+err.Error(), http.StatusInternalServerError)
			return
		}
		body, contentType = bytes.NewBuffer(b), "application/json"
	default:
		handlers.WriteError(w, "expected multipart/form-data or application/json", http.StatusBadRequest)
		return
	}

	log.Info("relaying request", slog.String("webhookId", webhookID), slog.String("contentType", mediaType))
	resp, err := h.forwarder.Forward(ctx, webhookID, contentType, body)
	var ve apierr.ValidationError
	if errors.As(err, &ve) {
		log.Warn("rejected relay request", slog.String("webhookId", webhookID), slog.Any("error", err))
		handlers.WriteError(w, ve.Message, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error("failed to relay request", slog.Any("error", err))
		handlers.WriteError(w, "Failed to process request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	handlers.WriteRawJSON(w, resp, http.StatusOK)
}
