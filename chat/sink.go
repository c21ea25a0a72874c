// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/lib/ref"
	"github.com/bureau-foundation/consolebridge/messaging"
)

// Sink delivers console output to Matrix. Each chunk goes to every
// subscribed room, and to the room the command came from when that room
// is not subscribed.
type Sink struct {
	Session Session
	Store   *Store

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

var _ console.Sink = (*Sink)(nil)

func (s *Sink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Deliver implements console.Sink.
func (s *Sink) Deliver(ctx context.Context, output console.Output) error {
	origin, fromRoom := originRoomID(output.Origin)

	if output.Refresh != nil {
		s.logger().Debug("command table refreshed",
			"origin", string(output.Origin),
			"generation", output.Refresh.Generation(),
		)
		if !fromRoom {
			return nil
		}
		text := fmt.Sprintf("command list refreshed: %d console commands", output.Refresh.Forwarded())
		_, err := s.Session.SendMessage(ctx, origin, messaging.NewNotice(text, ""))
		return err
	}
	if output.Chunk == nil {
		return nil
	}

	rooms := s.Store.Rooms()
	if fromRoom && !s.Store.Subscribed(origin) {
		rooms = append(rooms, origin)
	}
	if len(rooms) == 0 {
		s.logger().Debug("console output has no recipients", "origin", string(output.Origin))
		return nil
	}

	content := messaging.NewNotice(output.Chunk.Text, "<pre><code>"+html.EscapeString(output.Chunk.Text)+"</code></pre>")
	var errs []error
	for _, roomID := range rooms {
		if _, err := s.Session.SendMessage(ctx, roomID, content); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
		}
	}
	return errors.Join(errs...)
}

func originRoomID(origin console.Origin) (ref.RoomID, bool) {
	roomID, err := ref.ParseRoomID(string(origin))
	return roomID, err == nil
}
