// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package console turns the unframed line stream of an interactive
// console process into per-command output frames and routes remote
// commands back into it.
//
// The console has no request/response delimiters, so every command is
// followed by a sentinel marker written twice (see [Injector]). The
// console echoes something recognizable for the marker, and two such
// lines in a row end the frame (see [RepeatedMarker] and [Decoder]).
// Frames are packed into size-bounded chunks for message transports
// ([Split]).
//
// The console's own help listing is compiled into the routable command
// table ([Registry]); remote commands are looked up there and either
// handled locally (builtins) or rewritten into console syntax and
// forwarded ([Router]).
//
// [Coordinator] ties the pieces together with a writer loop, a reader
// loop and a delivery loop joined by small bounded queues. Only one
// command is in flight at a time: the writer waits for the reader to
// finish the current frame before injecting the next command.
package console
