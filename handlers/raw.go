// Package handlers contains helpers shared by the route handlers in its subpackages.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/models"
	"github.com/a-h/respond"
)

// WriteRawJSON writes body exactly as received from an upstream service.
func WriteRawJSON(w http.ResponseWriter, body []byte, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteUpstreamError passes an upstream failure through with its status, using the
// upstream body when it is JSON.
func WriteUpstreamError(w http.ResponseWriter, err apierr.UpstreamError) {
	if len(err.Body) > 0 && json.Valid(err.Body) {
		WriteRawJSON(w, err.Body, err.Status)
		return
	}
	respond.WithJSON(w, models.ErrorResponse{Error: err.Error()}, err.Status)
}

func WriteError(w http.ResponseWriter, msg string, status int) {
	respond.WithJSON(w, models.ErrorResponse{Error: msg}, status)
}
