// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/lib/testutil"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []console.Request
	err      error
}

func (s *recordingSubmitter) Submit(ctx context.Context, request console.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, request)
	return nil
}

func (s *recordingSubmitter) submitted() []console.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]console.Request(nil), s.requests...)
}

type fakeStatus struct {
	state     console.State
	done      chan struct{}
	anomalies int
}

func (f *fakeStatus) State() console.State  { return f.state }
func (f *fakeStatus) Done() <-chan struct{} { return f.done }
func (f *fakeStatus) DecodeAnomalies() int  { return f.anomalies }
func (f *fakeStatus) RefreshCommands(ctx context.Context, origin console.Origin) error {
	if origin != OriginHTTP {
		return fmt.Errorf("unexpected origin %q", origin)
	}
	return nil
}

type harness struct {
	server    *httptest.Server
	submitter *recordingSubmitter
	status    *fakeStatus
}

func newHarness(t *testing.T, tokenHash string) *harness {
	t.Helper()

	registry := console.NewRegistry([]console.Entry{{Name: "/output", Description: "Send output here"}}, []string{"stop"})
	registry.Refresh("Commands:\nstatus Show status.\nban-player - Bans a player.\nstop Stops the server.\nsay <message...>")

	submitter := &recordingSubmitter{}
	router := console.NewRouter(registry, submitter)
	router.Handle("/output", func(ctx context.Context, command console.Command) error {
		return fmt.Errorf("/output must be sent from a chat room: %w", console.ErrWrongOrigin)
	})

	status := &fakeStatus{state: console.StateIdle, done: make(chan struct{})}
	handler, err := NewHandler(Config{
		Router:    router,
		Registry:  registry,
		Status:    status,
		Refresher: status,
		TokenHash: tokenHash,
	})
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &harness{server: server, submitter: submitter, status: status}
}

func (h *harness) do(t *testing.T, method, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()
	request, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer response.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decoding response: %v", method, path, err)
	}
	return response, decoded
}

func TestHealth(t *testing.T) {
	h := newHarness(t, "")

	response, body := h.do(t, "GET", "/healthz", "", "")
	if response.StatusCode != http.StatusOK || body["status"] != "ok" || body["state"] != "idle" {
		t.Errorf("healthz = %d %v", response.StatusCode, body)
	}
	if body["generation"] != float64(1) {
		t.Errorf("generation = %v, want 1", body["generation"])
	}
	if body["decode_anomalies"] != float64(0) {
		t.Errorf("decode_anomalies = %v, want 0", body["decode_anomalies"])
	}

	h.status.anomalies = 4
	_, body = h.do(t, "GET", "/healthz", "", "")
	if body["decode_anomalies"] != float64(4) {
		t.Errorf("decode_anomalies = %v, want 4", body["decode_anomalies"])
	}

	close(h.status.done)
	response, body = h.do(t, "GET", "/healthz", "", "")
	if response.StatusCode != http.StatusServiceUnavailable || body["status"] != "stopped" {
		t.Errorf("healthz after stop = %d %v", response.StatusCode, body)
	}
}

func TestListCommands(t *testing.T) {
	h := newHarness(t, "")

	response, body := h.do(t, "GET", "/v1/commands", "", "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	commands, _ := body["commands"].([]any)
	var names []string
	for _, command := range commands {
		names = append(names, command.(map[string]any)["name"].(string))
	}
	got := strings.Join(names, " ")
	if got != "/ban_player /output /say /status" {
		t.Errorf("commands = %s", got)
	}
	first := commands[0].(map[string]any)
	if first["console_name"] != "ban-player" || first["kind"] != "forwarded" || first["description"] != "Bans a player" {
		t.Errorf("first entry = %v", first)
	}
}

func TestSubmitCommand(t *testing.T) {
	h := newHarness(t, "")

	response, body := h.do(t, "POST", "/v1/commands", `{"command":"/ban_player","args":["griefer"]}`, "")
	if response.StatusCode != http.StatusAccepted || body["command"] != "/ban_player" {
		t.Fatalf("submit = %d %v", response.StatusCode, body)
	}
	// The leading slash is optional.
	response, _ = h.do(t, "POST", "/v1/commands", `{"command":"status"}`, "")
	if response.StatusCode != http.StatusAccepted {
		t.Fatalf("submit without slash = %d", response.StatusCode)
	}

	submitted := h.submitter.submitted()
	if len(submitted) != 2 {
		t.Fatalf("submitted %+v", submitted)
	}
	if submitted[0].Line != "ban-player griefer" || submitted[0].Origin != OriginHTTP {
		t.Errorf("first request = %+v", submitted[0])
	}
	if submitted[1].Line != "status" {
		t.Errorf("second request = %+v", submitted[1])
	}
}

func TestSubmitErrors(t *testing.T) {
	h := newHarness(t, "")

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"malformed", `{"command":`, http.StatusBadRequest, "invalid request body"},
		{"unknown field", `{"command":"/status","extra":1}`, http.StatusBadRequest, "invalid request body"},
		{"missing command", `{"args":["x"]}`, http.StatusBadRequest, "command is required"},
		{"denied", `{"command":"/stop"}`, http.StatusNotFound, "unknown command /stop"},
		{"exit", `{"command":"/exit"}`, http.StatusNotFound, "unknown command /exit"},
		{"multiline argument", `{"command":"/say","args":["hi\nstop"]}`, http.StatusBadRequest, "line break"},
		{"room builtin", `{"command":"/output"}`, http.StatusBadRequest, "chat room"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response, body := h.do(t, "POST", "/v1/commands", test.body, "")
			message, _ := body["error"].(string)
			if response.StatusCode != test.status || !strings.Contains(message, test.want) {
				t.Errorf("got %d %q, want %d containing %q", response.StatusCode, message, test.status, test.want)
			}
		})
	}
}

func TestSubmitUnknownSuggests(t *testing.T) {
	h := newHarness(t, "")

	response, body := h.do(t, "POST", "/v1/commands", `{"command":"/statu"}`, "")
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", response.StatusCode)
	}
	suggestions, _ := body["suggestions"].([]any)
	if len(suggestions) == 0 || suggestions[0] != "/status" {
		t.Errorf("suggestions = %v", body["suggestions"])
	}
}

func TestSubmitWhenStopped(t *testing.T) {
	h := newHarness(t, "")
	h.submitter.err = console.ErrStopped

	response, body := h.do(t, "POST", "/v1/commands", `{"command":"/status"}`, "")
	if response.StatusCode != http.StatusServiceUnavailable || body["error"] != "the console is not running" {
		t.Errorf("got %d %v", response.StatusCode, body)
	}
}

func TestRefreshCommands(t *testing.T) {
	h := newHarness(t, "")

	response, body := h.do(t, "POST", "/v1/commands/refresh", "", "")
	if response.StatusCode != http.StatusAccepted || body["status"] != "accepted" {
		t.Errorf("refresh = %d %v", response.StatusCode, body)
	}
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, string(hash))

	response, _ := h.do(t, "GET", "/v1/commands", "", "")
	if response.StatusCode != http.StatusUnauthorized || response.Header.Get("WWW-Authenticate") == "" {
		t.Errorf("no token = %d", response.StatusCode)
	}
	response, _ = h.do(t, "GET", "/v1/commands", "", "wrong")
	if response.StatusCode != http.StatusForbidden {
		t.Errorf("wrong token = %d", response.StatusCode)
	}
	response, _ = h.do(t, "GET", "/v1/commands", "", "s3cret")
	if response.StatusCode != http.StatusOK {
		t.Errorf("right token = %d", response.StatusCode)
	}
	response, _ = h.do(t, "GET", "/healthz", "", "")
	if response.StatusCode != http.StatusOK {
		t.Errorf("healthz requires auth: %d", response.StatusCode)
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("token")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("token")) != nil {
		t.Error("hash does not match its token")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- Serve(ctx, listener, handler, nil) }()

	response, err := http.Get("http://" + listener.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	response.Body.Close()

	cancel()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Serve"); err != nil {
		t.Errorf("Serve = %v", err)
	}
}
