// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// splitSigilID splits an identifier of the form <sigil>localpart:server.
// The localpart must be non-empty. The server runs to the end of the
// string and may carry a port.
func splitSigilID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if identifier == "" {
		return "", "", fmt.Errorf("empty %s", kind)
	}
	if identifier[0] != sigil {
		return "", "", fmt.Errorf("%s must start with %q: %q", kind, sigil, identifier)
	}
	colon := strings.IndexByte(identifier, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("%s missing ':server' suffix: %q", kind, identifier)
	}
	if colon == 1 {
		return "", "", fmt.Errorf("%s has empty local part: %q", kind, identifier)
	}
	server = identifier[colon+1:]
	if err := validateServer(server); err != nil {
		return "", "", fmt.Errorf("%s %q: %w", kind, identifier, err)
	}
	return identifier[1:colon], server, nil
}

func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for index := 0; index < len(server); index++ {
		switch c := server[index]; {
		case c <= ' ', c == 0x7f, c == '@', c == '#', c == '!', c == '$':
			return fmt.Errorf("server name %q: invalid character at position %d", server, index)
		}
	}
	return nil
}
