// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controlapi serves a small HTTP API for operating the bridge
// without a chat account: health, the current command table, and
// command submission.
//
// Commands submitted here go through the same router as chat commands,
// so the denylist and the command table apply. Their origin is "http";
// their output reaches subscribed rooms like any other non-room
// command.
//
// When a bcrypt token hash is configured, every endpoint except
// /healthz requires "Authorization: Bearer <token>".
package controlapi
