// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bureau-foundation/consolebridge/lib/suggest"
)

// Command is a parsed remote command invocation.
type Command struct {
	// Name is the remote name including the marker, e.g. "/kick".
	Name   string
	Args   []string
	Origin Origin
}

// ParseCommand splits text of the form "/name arg arg" into a Command.
// Arguments are separated by whitespace runs. A "@botname" suffix on
// the command token ("/status@bridge") is dropped. It reports false
// when text is not a command.
func ParseCommand(text string, origin Origin) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	if !strings.HasPrefix(name, CommandMarker) || len(name) == len(CommandMarker) {
		return Command{}, false
	}
	command := Command{Name: name, Origin: origin}
	if len(fields) > 1 {
		command.Args = fields[1:]
	}
	return command, true
}

// ConsoleLine renders the command in console syntax: the console name
// followed by the arguments joined with single spaces.
func (c Command) ConsoleLine(entry Entry) string {
	name := entry.ConsoleName
	if name == "" {
		name = ToConsoleName(c.Name)
	}
	if len(c.Args) == 0 {
		return name
	}
	return name + " " + strings.Join(c.Args, " ")
}

// UnknownCommandError is returned by Route for names that are not in
// the command table.
type UnknownCommandError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownCommandError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown command %s", e.Name)
	}
	return fmt.Sprintf("unknown command %s (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

// ErrNoHandler is returned when a builtin entry has no registered
// handler.
var ErrNoHandler = errors.New("console: builtin has no handler")

// ErrWrongOrigin is wrapped by builtin handlers that cannot serve the
// command's origin, such as a room-scoped builtin sent over HTTP.
var ErrWrongOrigin = errors.New("console: command not available from this origin")

// BuiltinHandler executes a builtin command.
type BuiltinHandler func(ctx context.Context, command Command) error

// Submitter accepts console requests. *Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, request Request) error
}

// Router dispatches remote commands using the registry's current table.
type Router struct {
	registry  *Registry
	submitter Submitter

	mu       sync.RWMutex
	handlers map[string]BuiltinHandler
}

// NewRouter returns a Router with no builtin handlers.
func NewRouter(registry *Registry, submitter Submitter) *Router {
	return &Router{
		registry:  registry,
		submitter: submitter,
		handlers:  make(map[string]BuiltinHandler),
	}
}

// Handle registers the handler for a builtin command name.
func (r *Router) Handle(name string, handler BuiltinHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Route executes command. Builtins run their handler; forwarded
// commands are submitted to the console. A name that is not yet known
// waits for the first help listing before being rejected, so commands
// sent during startup are not refused spuriously.
func (r *Router) Route(ctx context.Context, command Command) error {
	entry, ok := r.registry.Lookup(command.Name)
	if !ok {
		select {
		case <-r.registry.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
		entry, ok = r.registry.Lookup(command.Name)
	}
	if !ok {
		table := r.registry.Snapshot()
		return &UnknownCommandError{
			Name:        command.Name,
			Suggestions: suggest.Ranked(command.Name, table.Names(), suggest.MaxDistance, 3),
		}
	}

	switch entry.Kind {
	case Builtin:
		r.mu.RLock()
		handler := r.handlers[entry.Name]
		r.mu.RUnlock()
		if handler == nil {
			return fmt.Errorf("%w: %s", ErrNoHandler, entry.Name)
		}
		return handler(ctx, command)
	default:
		return r.submitter.Submit(ctx, Request{
			Line:   command.ConsoleLine(entry),
			Origin: command.Origin,
			Kind:   RequestCommand,
		})
	}
}
