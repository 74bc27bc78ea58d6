package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/agentui/auth"
	"github.com/a-h/agentui/config"
	completionspost "github.com/a-h/agentui/handlers/completions/post"
	relaypost "github.com/a-h/agentui/handlers/relay/post"
	sessionpost "github.com/a-h/agentui/handlers/session/post"
	"github.com/a-h/agentui/modelproxy"
	"github.com/a-h/agentui/relay"
	"github.com/a-h/agentui/requestid"
	"github.com/rs/cors"
)

type ServeCommand struct {
	Config       config.Config `embed:""`
	ListenAddr   string        `help:"The address to listen on." env:"LISTEN_ADDR" default:"localhost:9020"`
	TLSCertFile  string        `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile   string        `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	APIKeysFile  string        `help:"The file containing a JSON map of API keys to usernames. Requests are not authenticated if unset." env:"API_KEYS_FILE" default:""`
	MaxBodyBytes int64         `help:"The maximum size of a relay request body." env:"MAX_BODY_BYTES" default:"33554432"`
	LogLevel     string        `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	if err = c.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Config.N8NUsername == "" || c.Config.N8NPassword == "" {
		log.Warn("n8n credentials are not set, webhooks will receive empty basic auth")
	}
	if c.Config.OpenAIAPIKey == "" {
		log.Warn("OpenAI API key is not set, completion and realtime session routes will fail")
	}

	log.Info("creating clients", slog.String("n8n", c.Config.N8NBase()), slog.String("webhookPath", c.Config.WebhookSegment()), slog.String("openai", c.Config.OpenAIBase()))
	httpClient := &http.Client{}
	rc := relay.New(log, c.Config, httpClient)
	proxy := modelproxy.New(log, c.Config, modelproxy.NewOpenAIClient(c.Config))

	mux := http.NewServeMux()
	mux.Handle("POST /relay", relaypost.New(log, rc, c.Config.RouteTimeout, c.MaxBodyBytes))
	mux.Handle("POST /completions", completionspost.New(log, proxy))
	mux.Handle("POST /realtime-session", sessionpost.New(log, proxy))

	var h http.Handler = mux
	if c.APIKeysFile != "" {
		apiKeyToUserName, err := auth.LoadFromFile(c.APIKeysFile)
		if err != nil {
			return fmt.Errorf("failed to load API keys: %w", err)
		}
		log.Info("API key authentication enabled", slog.Int("keys", len(apiKeyToUserName)))
		h = auth.New(log, apiKeyToUserName, h)
	}
	h = requestid.New(log, h)
	h = cors.AllowAll().Handler(h)

	s := &http.Server{
		Addr:              c.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      c.Config.RouteTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down cleanly", slog.Any("error", err))
		}
	}()

	log.Info("Listening", slog.String("addr", c.ListenAddr))
	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		err = s.ListenAndServeTLS(c.TLSCertFile, c.TLSKeyFile)
	} else {
		err = s.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
