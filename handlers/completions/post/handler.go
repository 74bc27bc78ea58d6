package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/auth"
	"github.com/a-h/agentui/handlers"
	"github.com/a-h/agentui/models"
	"github.com/a-h/respond"
)

type Completer interface {
	Complete(ctx context.Context, prompt string, images []string) (output string, err error)
}

func New(log *slog.Logger, completer Completer) Handler {
	return Handler{
		log:       log,
		completer: completer,
	}
}

type Handler struct {
	log       *slog.Logger
	completer Completer
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := auth.Logger(h.log, r)

	var req models.CompletionsPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode body", slog.Any("error", err))
		handlers.WriteError(w, "failed to decode body", http.StatusBadRequest)
		return
	}

	output, err := h.completer.Complete(r.Context(), req.Prompt, req.Images)
	if err != nil {
		var ve apierr.ValidationError
		if errors.As(err, &ve) {
			handlers.WriteError(w, ve.Message, http.StatusBadRequest)
			return
		}
		var ue apierr.UpstreamError
		if errors.As(err, &ue) {
			log.Warn("completion failed upstream", slog.Int("status", ue.Status))
			handlers.WriteUpstreamError(w, ue)
			return
		}
		log.Error("failed to complete", slog.Any("error", err))
		respond.WithJSON(w, models.ErrorResponse{Error: "Unexpected error", Detail: err.Error()}, http.StatusInternalServerError)
		return
	}

	respond.WithJSON(w, models.CompletionsPostResponse{Output: output}, http.StatusOK)
}
