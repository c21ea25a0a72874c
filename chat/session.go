// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"

	"github.com/bureau-foundation/consolebridge/lib/ref"
	"github.com/bureau-foundation/consolebridge/messaging"
)

// Session is the part of a Matrix session the front end uses.
type Session interface {
	UserID() ref.UserID
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	JoinRoom(ctx context.Context, room ref.RoomRef) (ref.RoomID, error)
}

var _ Session = (*messaging.Session)(nil)
