// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/consolebridge/console"
)

// OriginHTTP is the origin of commands submitted through the API.
const OriginHTTP console.Origin = "http"

// maxRequestBody bounds POST bodies.
const maxRequestBody = 64 << 10

// shutdownTimeout bounds graceful shutdown in Serve.
const shutdownTimeout = 5 * time.Second

// Status reports the coordinator's state. *console.Coordinator
// implements it.
type Status interface {
	State() console.State
	Done() <-chan struct{}
	DecodeAnomalies() int
}

// Refresher re-reads the console's help listing.
type Refresher interface {
	RefreshCommands(ctx context.Context, origin console.Origin) error
}

// Config configures the API handler.
type Config struct {
	Router    *console.Router
	Registry  *console.Registry
	Status    Status
	Refresher Refresher

	// TokenHash is a bcrypt hash of the bearer token. Empty disables
	// authentication.
	TokenHash string

	// Logger receives request logs. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type server struct {
	config Config
	logger *slog.Logger
}

// NewHandler returns the API's HTTP handler.
func NewHandler(config Config) (http.Handler, error) {
	if config.Router == nil || config.Registry == nil || config.Status == nil {
		return nil, fmt.Errorf("controlapi: Router, Registry and Status are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{config: config, logger: logger.With("component", "controlapi")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		if config.TokenHash != "" {
			r.Use(bearerAuth(config.TokenHash))
		}
		r.Get("/commands", s.listCommands)
		r.Post("/commands", s.submitCommand)
		r.Post("/commands/refresh", s.refreshCommands)
	})
	return r, nil
}

// Serve serves handler on listener until ctx is done, then shuts down
// gracefully.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()
	logger.Info("control API listening", "address", listener.Addr().String())

	select {
	case err := <-serveErr:
		return fmt.Errorf("controlapi: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("controlapi: shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("controlapi: %w", err)
	}
	return nil
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"bytes", wrapped.BytesWritten(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`

	// DecodeAnomalies counts console output lines that needed repair.
	DecodeAnomalies int `json:"decode_anomalies"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:          "ok",
		State:           s.config.Status.State().String(),
		Generation:      s.config.Registry.Snapshot().Generation(),
		DecodeAnomalies: s.config.Status.DecodeAnomalies(),
	}
	select {
	case <-s.config.Status.Done():
		response.Status = "stopped"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	default:
	}
	writeJSON(w, http.StatusOK, response)
}

type commandEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	ConsoleName string `json:"console_name,omitempty"`
}

type commandsResponse struct {
	Generation uint64         `json:"generation"`
	Commands   []commandEntry `json:"commands"`
}

func (s *server) listCommands(w http.ResponseWriter, r *http.Request) {
	table := s.config.Registry.Snapshot()
	response := commandsResponse{
		Generation: table.Generation(),
		Commands:   make([]commandEntry, 0, table.Len()),
	}
	for _, entry := range table.Entries() {
		response.Commands = append(response.Commands, commandEntry{
			Name:        entry.Name,
			Description: entry.Description,
			Kind:        entry.Kind.String(),
			ConsoleName: entry.ConsoleName,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

type submitRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type acceptedResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
}

func (s *server) submitCommand(w http.ResponseWriter, r *http.Request) {
	var request submitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(request.Command)
	if name == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	for _, arg := range request.Args {
		if strings.ContainsAny(arg, "\r\n") {
			writeError(w, http.StatusBadRequest, "arguments must not contain line breaks")
			return
		}
	}
	if !strings.HasPrefix(name, console.CommandMarker) {
		name = console.CommandMarker + name
	}

	command := console.Command{Name: name, Args: request.Args, Origin: OriginHTTP}
	if err := s.config.Router.Route(r.Context(), command); err != nil {
		s.writeRouteError(w, r, command, err)
		return
	}
	s.logger.Info("command accepted", "command", name, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Command: name})
}

func (s *server) refreshCommands(w http.ResponseWriter, r *http.Request) {
	if s.config.Refresher == nil {
		writeError(w, http.StatusNotImplemented, "refreshing commands is not available")
		return
	}
	if err := s.config.Refresher.RefreshCommands(r.Context(), OriginHTTP); err != nil {
		s.writeRouteError(w, r, console.Command{Name: "refresh"}, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

type errorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *server) writeRouteError(w http.ResponseWriter, r *http.Request, command console.Command, err error) {
	var unknown *console.UnknownCommandError
	switch {
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Suggestions: unknown.Suggestions})
	case errors.Is(err, console.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "the console is not running")
	case errors.Is(err, console.ErrEmptyCommand),
		errors.Is(err, console.ErrMultilineCommand),
		errors.Is(err, console.ErrReservedCommand),
		errors.Is(err, console.ErrWrongOrigin):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		// The client went away while the request waited for queue space.
		s.logger.Info("request abandoned", "command", command.Name, "error", err)
	default:
		s.logger.Error("command failed", "command", command.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}
