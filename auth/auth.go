// Package auth protects the relay routes with API keys loaded from a JSON file.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/a-h/agentui/handlers"
	"github.com/a-h/agentui/requestid"
)

func New(log *slog.Logger, apiKeyToUserName map[string]string, next http.Handler) *Auth {
	return &Auth{
		Log:              log,
		Next:             next,
		APIKeyToUserName: apiKeyToUserName,
	}
}

type Auth struct {
	Log              *slog.Logger
	Next             http.Handler
	APIKeyToUserName map[string]string
}

// LoadFromFile reads a JSON object mapping API keys to user names.
func LoadFromFile(name string) (apiKeyToUserName map[string]string, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m := make(map[string]string)
	if err = json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid API key file %s: %w", name, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("API key file %s contains no keys", name)
	}
	return m, nil
}

type userContextKey int

const userKey userContextKey = 0

func GetUser(r *http.Request) (user string, ok bool) {
	user, ok = r.Context().Value(userKey).(string)
	return
}

// Logger returns log with the request id and authenticated user attached.
func Logger(log *slog.Logger, r *http.Request) *slog.Logger {
	log = requestid.Logger(log, r)
	if user, ok := GetUser(r); ok {
		return log.With(slog.String("user", user))
	}
	return log
}

func (a *Auth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	user, ok := a.APIKeyToUserName[key]
	if key == "" || !ok {
		requestid.Logger(a.Log, r).Warn("rejected request", slog.String("path", r.URL.Path))
		w.Header().Set("WWW-Authenticate", "Bearer")
		handlers.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), userKey, user))
	a.Next.ServeHTTP(w, r)
}
