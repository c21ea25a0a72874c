// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated value types for the Matrix identifiers
// the bridge handles: user IDs, room IDs, room aliases and event IDs.
//
// Identifiers arrive as strings from configuration and from homeserver
// responses. They are parsed once at that boundary; code past it passes
// the typed values around and never re-validates. Every type implements
// encoding.TextMarshaler and encoding.TextUnmarshaler so it can appear
// directly in YAML, JSON and CBOR documents.
package ref
