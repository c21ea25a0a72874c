// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/lib/clock"
	"github.com/bureau-foundation/consolebridge/lib/ref"
	"github.com/bureau-foundation/consolebridge/messaging"
)

const (
	// DefaultCommandPrefix is accepted in addition to "/". Element and
	// most other clients treat a leading "/" as a client command, so
	// users type "!status" instead.
	DefaultCommandPrefix = "!"

	// DefaultDedupTTL is how long a handled event ID is remembered.
	DefaultDedupTTL = 10 * time.Minute
)

// Refresher re-issues the console help command. *console.Coordinator
// implements it.
type Refresher interface {
	RefreshCommands(ctx context.Context, origin console.Origin) error
}

// Config configures a Frontend.
type Config struct {
	// Session is the bridge's Matrix session. Required.
	Session Session

	// Router routes parsed commands. Required.
	Router *console.Router

	// Registry is read by /help. Required.
	Registry *console.Registry

	// Refresher serves /refresh_commands. If nil, the command reports
	// that refreshing is unavailable.
	Refresher Refresher

	// Store holds output subscriptions. Required.
	Store *Store

	// Rooms are joined at startup. When non-empty, commands are only
	// accepted from these rooms and invites to other rooms are ignored.
	// When empty, every joined room is accepted and every invite is
	// joined.
	Rooms []ref.RoomRef

	// CommandPrefix is an alternative to "/". Defaults to
	// DefaultCommandPrefix.
	CommandPrefix string

	// SyncTimeout is the long-poll wait in milliseconds. Defaults to
	// DefaultSyncTimeout.
	SyncTimeout int

	// MaxBackoff caps the /sync retry delay. Defaults to
	// DefaultMaxBackoff.
	MaxBackoff time.Duration

	// DedupTTL bounds how long handled event IDs are remembered.
	// Defaults to DefaultDedupTTL.
	DedupTTL time.Duration

	// Clock drives retry delays. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Frontend reads commands from Matrix rooms and routes them to the
// console. Output flows back through a Sink, not through the Frontend.
type Frontend struct {
	session   Session
	router    *console.Router
	registry  *console.Registry
	refresher Refresher
	store     *Store

	rooms       []ref.RoomRef
	allowAll    bool
	allowed     map[ref.RoomID]struct{}
	prefix      string
	syncTimeout int
	maxBackoff  time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	// seen holds recently handled event IDs so a batch redelivered
	// after a failed sync does not run its commands twice.
	seen *ttlcache.Cache[ref.EventID, struct{}]
}

// NewFrontend validates config and registers the chat builtins on the
// router.
func NewFrontend(config Config) (*Frontend, error) {
	if config.Session == nil || config.Router == nil || config.Registry == nil || config.Store == nil {
		return nil, fmt.Errorf("chat: Session, Router, Registry and Store are required")
	}

	frontend := &Frontend{
		session:     config.Session,
		router:      config.Router,
		registry:    config.Registry,
		refresher:   config.Refresher,
		store:       config.Store,
		rooms:       config.Rooms,
		allowAll:    len(config.Rooms) == 0,
		allowed:     make(map[ref.RoomID]struct{}),
		prefix:      config.CommandPrefix,
		syncTimeout: config.SyncTimeout,
		maxBackoff:  config.MaxBackoff,
		clock:       config.Clock,
		logger:      config.Logger,
	}
	if frontend.prefix == "" {
		frontend.prefix = DefaultCommandPrefix
	}
	if frontend.syncTimeout <= 0 {
		frontend.syncTimeout = DefaultSyncTimeout
	}
	if frontend.maxBackoff <= 0 {
		frontend.maxBackoff = DefaultMaxBackoff
	}
	if frontend.clock == nil {
		frontend.clock = clock.Real()
	}
	if frontend.logger == nil {
		frontend.logger = slog.Default()
	}

	dedupTTL := config.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	frontend.seen = ttlcache.New[ref.EventID, struct{}](
		ttlcache.WithTTL[ref.EventID, struct{}](dedupTTL),
		ttlcache.WithDisableTouchOnHit[ref.EventID, struct{}](),
	)

	frontend.registerBuiltins()
	return frontend, nil
}

// Run joins the configured rooms, takes an initial snapshot, and then
// long-polls for messages until ctx is done. Messages already in the
// room before startup are not replayed.
func (f *Frontend) Run(ctx context.Context) error {
	go f.seen.Start()
	defer f.seen.Stop()

	for _, room := range f.rooms {
		roomID, err := f.session.JoinRoom(ctx, room)
		if err != nil {
			return fmt.Errorf("chat: joining %s: %w", room, err)
		}
		f.allowed[roomID] = struct{}{}
		f.logger.Info("joined room", "room", room.String(), "room_id", roomID.String())
	}

	initial, err := f.initialSync(ctx)
	if err != nil {
		return err
	}
	f.acceptInvites(ctx, initial.Rooms.Invite)
	f.logger.Info("chat front end ready",
		"user_id", f.session.UserID().String(),
		"joined_rooms", len(initial.Rooms.Join),
		"subscribed_rooms", len(f.store.Rooms()),
	)

	f.syncLoop(ctx, initial.NextBatch, f.handleSync)
	return ctx.Err()
}

func (f *Frontend) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	f.acceptInvites(ctx, response.Rooms.Invite)
	for roomID, room := range response.Rooms.Join {
		if !f.isAllowed(roomID) {
			continue
		}
		for _, event := range room.Timeline.Events {
			f.handleEvent(ctx, roomID, event)
		}
	}
}

func (f *Frontend) isAllowed(roomID ref.RoomID) bool {
	if f.allowAll {
		return true
	}
	_, ok := f.allowed[roomID]
	return ok
}

// acceptInvites joins invited rooms that commands are accepted from.
func (f *Frontend) acceptInvites(ctx context.Context, invites map[ref.RoomID]messaging.InvitedRoom) {
	for roomID := range invites {
		if !f.isAllowed(roomID) {
			f.logger.Info("ignoring invite to room outside the allow list", "room_id", roomID.String())
			continue
		}
		f.logger.Info("accepting room invite", "room_id", roomID.String())
		if _, err := f.session.JoinRoom(ctx, ref.RoomRef{ID: roomID}); err != nil {
			f.logger.Error("failed to accept room invite", "room_id", roomID.String(), "error", err)
		}
	}
}

func (f *Frontend) handleEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	if event.Type != messaging.EventTypeMessage || event.ContentString("msgtype") != messaging.MsgTypeText {
		return
	}
	if event.Sender == f.session.UserID() {
		return
	}
	if !event.EventID.IsZero() {
		if f.seen.Has(event.EventID) {
			return
		}
		f.seen.Set(event.EventID, struct{}{}, ttlcache.DefaultTTL)
	}

	text, ok := f.normalize(event.ContentString("body"))
	if !ok {
		return
	}
	command, ok := console.ParseCommand(text, console.Origin(roomID.String()))
	if !ok {
		return
	}

	f.logger.Info("chat command",
		"room_id", roomID.String(),
		"sender", event.Sender.String(),
		"command", command.Name,
	)
	if err := f.router.Route(ctx, command); err != nil {
		f.reportRouteError(ctx, roomID, command, err)
	}
}

// normalize rewrites the alternative prefix to "/". Text that starts
// with neither is not a command.
func (f *Frontend) normalize(body string) (string, bool) {
	body = strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(body, console.CommandMarker):
		return body, true
	case f.prefix != console.CommandMarker && strings.HasPrefix(body, f.prefix):
		return console.CommandMarker + strings.TrimPrefix(body, f.prefix), true
	}
	return "", false
}

func (f *Frontend) reportRouteError(ctx context.Context, roomID ref.RoomID, command console.Command, err error) {
	var unknown *console.UnknownCommandError
	switch {
	case errors.As(err, &unknown):
		f.reply(ctx, roomID, unknownCommandReply(unknown))
	case errors.Is(err, console.ErrStopped):
		f.reply(ctx, roomID, "the console is not running")
	case ctx.Err() != nil:
	default:
		f.logger.Warn("command failed", "room_id", roomID.String(), "command", command.Name, "error", err)
		f.reply(ctx, roomID, fmt.Sprintf("%s failed: %v", command.Name, err))
	}
}

func unknownCommandReply(err *console.UnknownCommandError) string {
	reply := "unknown command " + err.Name
	if len(err.Suggestions) > 0 {
		reply += "\ndid you mean " + strings.Join(err.Suggestions, " or ") + "?"
	}
	return reply
}

// reply sends a plain notice. Failures are logged; there is nobody else
// to tell.
func (f *Frontend) reply(ctx context.Context, roomID ref.RoomID, text string) {
	f.replyFormatted(ctx, roomID, text, "")
}

func (f *Frontend) replyFormatted(ctx context.Context, roomID ref.RoomID, text, html string) {
	if _, err := f.session.SendMessage(ctx, roomID, messaging.NewNotice(text, html)); err != nil {
		f.logger.Warn("sending reply failed", "room_id", roomID.String(), "error", err)
	}
}
