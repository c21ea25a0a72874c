// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/consolebridge/messaging"
)

const (
	// DefaultSyncTimeout is the /sync long-poll wait in milliseconds.
	DefaultSyncTimeout = 30000

	// DefaultMaxBackoff caps the retry delay after a failed /sync.
	DefaultMaxBackoff = 30 * time.Second

	initialBackoff = time.Second
)

// syncFilter restricts /sync to room messages and membership, which is
// all the front end reads. Presence and account data are dropped.
const syncFilter = `{"presence":{"types":[]},"account_data":{"types":[]},` +
	`"room":{"timeline":{"types":["m.room.message"]},"state":{"types":["m.room.member"]},` +
	`"ephemeral":{"types":[]},"account_data":{"types":[]}}}`

// initialSync fetches the current snapshot without waiting and returns
// the token to continue from.
func (f *Frontend) initialSync(ctx context.Context) (*messaging.SyncResponse, error) {
	response, err := f.session.Sync(ctx, messaging.SyncOptions{
		Filter:     syncFilter,
		SetTimeout: true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: initial sync: %w", err)
	}
	return response, nil
}

// syncLoop long-polls /sync from since until ctx is done. Failures are
// retried with exponential backoff; a rate-limit response waits at
// least as long as the server asked.
func (f *Frontend) syncLoop(ctx context.Context, since string, handle func(context.Context, *messaging.SyncResponse)) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		response, err := f.session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			Timeout:    f.syncTimeout,
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := backoff
			var matrixErr *messaging.MatrixError
			if errors.As(err, &matrixErr) && matrixErr.RetryAfter() > wait {
				wait = matrixErr.RetryAfter()
			}
			f.logger.Error("sync failed, retrying", "error", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return
			case <-f.clock.After(wait):
			}
			backoff = min(backoff*2, f.maxBackoff)
			continue
		}

		backoff = initialBackoff
		since = response.NextBatch
		handle(ctx, response)
	}
}
