// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewZeroesSource(t *testing.T) {
	source := []byte("syt_token")
	buffer, err := New(source)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "syt_token" {
		t.Errorf("String() = %q", got)
	}
	for index, b := range source {
		if b != 0 {
			t.Fatalf("source[%d] = %d, want zeroed", index, b)
		}
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestReadFileTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  syt_abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	buffer, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	defer buffer.Close()
	if got := buffer.String(); got != "syt_abc" {
		t.Errorf("String() = %q, want %q", got, "syt_abc")
	}
}

func TestReadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for whitespace-only token file")
	}
}

func TestCloseIsIdempotentAndPoisons(t *testing.T) {
	buffer, err := New([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("Len after Close = %d", buffer.Len())
	}

	defer func() {
		if recover() == nil {
			t.Error("String after Close should panic")
		}
	}()
	_ = buffer.String()
}
