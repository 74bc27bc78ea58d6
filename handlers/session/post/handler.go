package post

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/auth"
	"github.com/a-h/agentui/handlers"
	"github.com/a-h/agentui/models"
	"github.com/a-h/respond"
)

type SessionCreator interface {
	CreateRealtimeSession(ctx context.Context, req models.RealtimeSessionPostRequest) (json.RawMessage, error)
}

func New(log *slog.Logger, creator SessionCreator) Handler {
	return Handler{
		log:     log,
		creator: creator,
	}
}

type Handler struct {
	log     *slog.Logger
	creator SessionCreator
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := auth.Logger(h.log, r)

	// An empty body selects the default model and voice.
	var req models.RealtimeSessionPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode body", slog.Any("error", err))
		handlers.WriteError(w, "failed to decode body", http.StatusBadRequest)
		return
	}

	session, err := h.creator.CreateRealtimeSession(r.Context(), req)
	if err != nil {
		var ue apierr.UpstreamError
		if errors.As(err, &ue) {
			log.Warn("session creation failed upstream", slog.Int("status", ue.Status))
			handlers.WriteUpstreamError(w, ue)
			return
		}
		log.Error("failed to create session", slog.Any("error", err))
		respond.WithJSON(w, models.ErrorResponse{Error: "Failed to create session", Detail: err.Error()}, http.StatusInternalServerError)
		return
	}

	handlers.WriteRawJSON(w, session, http.StatusOK)
}
