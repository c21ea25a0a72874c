// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed stores the homeserver access token encrypted at rest
// with age. Operators seal the token to an x25519 recipient once; the
// bridge opens it at startup with the matching identity file and keeps
// the plaintext in a secret.Buffer.
//
// Both binary and ASCII-armored age files are accepted.
package sealed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/consolebridge/lib/secret"
)

// Seal encrypts plaintext to the given age1... recipients and returns an
// armored age file.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("sealed: closing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Open decrypts ciphertext with identities parsed from an age identity
// file (one AGE-SECRET-KEY-1... per line, # comments allowed).
func Open(ciphertext io.Reader, identityFile io.Reader) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(identityFile)
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing identities: %w", err)
	}

	buffered := bufio.NewReader(ciphertext)
	var source io.Reader = buffered
	if start, _ := buffered.Peek(len(armor.Header)); string(start) == armor.Header {
		source = armor.NewReader(buffered)
	}

	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	defer clear(plaintext)

	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("sealed: decrypted value is empty")
	}
	return secret.New(trimmed)
}

// OpenFile is Open over two file paths.
func OpenFile(path, identityPath string) (*secret.Buffer, error) {
	ciphertext, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	defer ciphertext.Close()

	identity, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	defer identity.Close()

	return Open(ciphertext, identity)
}

// GenerateIdentity creates a new x25519 identity. It returns the
// identity file contents and the recipient to seal to.
func GenerateIdentity() (identityFile, recipient string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("sealed: generating identity: %w", err)
	}
	identityFile = fmt.Sprintf("# consolebridge identity\n# recipient: %s\n%s\n",
		identity.Recipient(), identity)
	return identityFile, identity.Recipient().String(), nil
}
