// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/consolebridge/lib/ref"
)

// Event types and message types used by the bridge.
const (
	EventTypeMessage = "m.room.message"

	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"

	// FormatHTML is the only format value Matrix defines for
	// formatted_body.
	FormatHTML = "org.matrix.custom.html"
)

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// NewNotice creates an m.notice message with an HTML rendering. Bots
// send notices so other bots do not answer them. An empty html sends a
// plain notice.
func NewNotice(body, html string) MessageContent {
	content := MessageContent{MsgType: MsgTypeNotice, Body: body}
	if html != "" {
		content.Format = FormatHTML
		content.FormattedBody = html
	}
	return content
}

// Event is a Matrix event from a sync response.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// ContentString returns a string field of the event content, or "" if
// it is absent or not a string.
func (e Event) ContentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// SyncOptions controls the /sync request.
type SyncOptions struct {
	// Since is the next_batch token from the previous sync. Empty for
	// an initial sync.
	Since string

	// Timeout is the long-poll wait in milliseconds. It is only sent
	// when SetTimeout is true so that zero can be requested explicitly.
	Timeout    int
	SetTimeout bool

	// Filter is a filter ID or inline JSON filter.
	Filter string
}

// SyncResponse is the subset of /sync the bridge reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership. Keys are parsed
// through ref.RoomID's TextUnmarshaler.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom is sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// InvitedRoom is sync data for a room the user is invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection holds timeline events.
type TimelineSection struct {
	Events  []Event `json:"events"`
	Limited bool    `json:"limited"`
}

// StateSection holds state events.
type StateSection struct {
	Events []Event `json:"events"`
}

type loginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

type authResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

type whoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

type sendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

type joinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}
