// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the Matrix front end of the console bridge.
//
// A [Frontend] long-polls /sync, turns "/name args" (or "!name args")
// messages from allowed rooms into console.Command values and hands them
// to the console.Router. It also serves the chat builtins: /output and
// /stop_output manage which rooms receive console output, /help lists
// the current command table, and /refresh_commands asks the console for
// a fresh help listing.
//
// A [Sink] is the other direction. The coordinator hands it each chunk
// of console output and it posts the chunk as an m.notice to every
// subscribed room plus the room that issued the command.
//
// Subscriptions live in a [Store], persisted as CBOR so they survive
// restarts.
package chat
