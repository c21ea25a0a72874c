// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a small Matrix client-server API client covering
// what the chat front end needs: password login or a stored access
// token, whoami, long-poll sync, joining rooms and sending messages.
//
// [Client] is unauthenticated and holds the homeserver URL and HTTP
// transport. [Client.Login] and [Client.SessionFromToken] return a
// [Session], which keeps its access token in mmap-backed memory from
// lib/secret. Callers must Close the session to release it.
//
// Every non-2xx response is returned as a [*MatrixError] carrying the
// Matrix error code and HTTP status. Request URLs are built by string
// concatenation with url.PathEscape on each path segment so room
// aliases with reserved characters survive intact.
package messaging
