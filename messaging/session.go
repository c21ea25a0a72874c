// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/consolebridge/lib/ref"
	"github.com/bureau-foundation/consolebridge/lib/secret"
)

// Session is an authenticated Matrix session. Its methods are safe for
// concurrent use.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID

	// transactionCounter keeps transaction IDs unique within the session.
	transactionCounter atomic.Int64
}

// UserID returns the session's user ID.
func (s *Session) UserID() ref.UserID { return s.userID }

// Close releases the access token memory. Idempotent.
func (s *Session) Close() error {
	return s.accessToken.Close()
}

// WhoAmI validates the access token and returns the user it belongs to.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	var response whoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: parsing whoami response: %w", err)
	}
	return response.UserID, nil
}

// Sync performs one /sync request. Leave options.Since empty for the
// initial sync.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing sync response: %w", err)
	}
	return &response, nil
}

// SendMessage sends an m.room.message event and returns its event ID.
// The send is an idempotent PUT keyed by a fresh transaction ID.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(EventTypeMessage),
		url.PathEscape(s.nextTransactionID()),
	)
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, nil)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send to %s failed: %w", roomID, err)
	}
	var response sendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing send response: %w", err)
	}
	return response.EventID, nil
}

// JoinRoom joins a room by ID or alias and returns the joined room's ID.
// Joining a room the user is already in succeeds.
func (s *Session) JoinRoom(ctx context.Context, room ref.RoomRef) (ref.RoomID, error) {
	if room.IsZero() {
		return ref.RoomID{}, fmt.Errorf("messaging: join: room is required")
	}
	path := "/_matrix/client/v3/join/" + url.PathEscape(room.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join %s failed: %w", room, err)
	}
	var response joinResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: parsing join response: %w", err)
	}
	return response.RoomID, nil
}

func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("consolebridge-%d-%d", time.Now().UnixMilli(), counter)
}
