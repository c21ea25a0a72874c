// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/consolebridge/lib/codec"
	"github.com/bureau-foundation/consolebridge/lib/ref"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), SubscriptionsFile)
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore on a missing file: %v", err)
	}
	if len(store.Rooms()) != 0 {
		t.Fatalf("new store has rooms %v", store.Rooms())
	}

	for _, roomID := range []ref.RoomID{otherRoom, opsRoom} {
		added, err := store.Subscribe(roomID)
		if err != nil || !added {
			t.Fatalf("Subscribe(%s) = %v, %v", roomID, added, err)
		}
	}
	if added, err := store.Subscribe(opsRoom); err != nil || added {
		t.Errorf("second Subscribe = %v, %v; want not added", added, err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	want := []ref.RoomID{opsRoom, otherRoom}
	if got := reopened.Rooms(); !slices.Equal(got, want) {
		t.Errorf("reopened rooms = %v, want %v", got, want)
	}

	if removed, err := reopened.Unsubscribe(opsRoom); err != nil || !removed {
		t.Fatalf("Unsubscribe = %v, %v", removed, err)
	}
	if removed, err := reopened.Unsubscribe(opsRoom); err != nil || removed {
		t.Errorf("second Unsubscribe = %v, %v; want not removed", removed, err)
	}
	final, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if final.Subscribed(opsRoom) || !final.Subscribed(otherRoom) {
		t.Errorf("final rooms = %v", final.Rooms())
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestStoreFileIsCBOR(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), SubscriptionsFile)
	store, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Subscribe(opsRoom); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var document map[string]any
	if err := codec.Unmarshal(data, &document); err != nil {
		t.Fatalf("state file is not CBOR: %v", err)
	}
	rooms, ok := document["rooms"].([]any)
	if !ok || len(rooms) != 1 || rooms[0] != opsRoom.String() {
		t.Errorf("rooms field = %#v", document["rooms"])
	}
}

func TestStoreRejectsCorruptState(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()

	corrupt := filepath.Join(directory, "corrupt.cbor")
	if err := os.WriteFile(corrupt, []byte("\xff\xff not cbor"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStore(corrupt); err == nil {
		t.Error("OpenStore accepted a corrupt file")
	}

	future := filepath.Join(directory, "future.cbor")
	data, err := codec.Marshal(subscriptionsDocument{Version: subscriptionsVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(future, data, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStore(future); err == nil {
		t.Error("OpenStore accepted an unknown version")
	}
}

func TestStoreWriteFailureRollsBack(t *testing.T) {
	t.Parallel()

	store, err := OpenStore(filepath.Join(t.TempDir(), "missing-directory", SubscriptionsFile))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Subscribe(opsRoom); err == nil {
		t.Fatal("Subscribe succeeded without a writable directory")
	}
	if store.Subscribed(opsRoom) {
		t.Error("failed Subscribe left the room subscribed")
	}
}
