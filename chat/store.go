// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/consolebridge/lib/codec"
	"github.com/bureau-foundation/consolebridge/lib/ref"
)

// SubscriptionsFile is the state file name inside the state directory.
const SubscriptionsFile = "subscriptions.cbor"

const subscriptionsVersion = 1

// subscriptionsDocument is the on-disk form of the store.
type subscriptionsDocument struct {
	Version int          `cbor:"version"`
	Rooms   []ref.RoomID `cbor:"rooms"`
	Updated time.Time    `cbor:"updated"`
}

// Store is the set of rooms subscribed to console output. Every change
// is written through to disk before the method returns. A Store with an
// empty path keeps state in memory only.
type Store struct {
	path string

	mu    sync.Mutex
	rooms map[ref.RoomID]struct{}
}

// OpenStore loads the subscriptions at path. A missing file is an empty
// store.
func OpenStore(path string) (*Store, error) {
	store := &Store{path: path, rooms: make(map[ref.RoomID]struct{})}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: reading subscriptions: %w", err)
	}

	var document subscriptionsDocument
	if err := codec.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("chat: decoding %s: %w", path, err)
	}
	if document.Version != subscriptionsVersion {
		return nil, fmt.Errorf("chat: %s has version %d, want %d", path, document.Version, subscriptionsVersion)
	}
	for _, roomID := range document.Rooms {
		if !roomID.IsZero() {
			store.rooms[roomID] = struct{}{}
		}
	}
	return store, nil
}

// Subscribe adds roomID. It reports whether the room was newly added.
func (s *Store) Subscribe(roomID ref.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return false, nil
	}
	s.rooms[roomID] = struct{}{}
	if err := s.save(); err != nil {
		delete(s.rooms, roomID)
		return false, err
	}
	return true, nil
}

// Unsubscribe removes roomID. It reports whether the room was
// subscribed.
func (s *Store) Unsubscribe(roomID ref.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false, nil
	}
	delete(s.rooms, roomID)
	if err := s.save(); err != nil {
		s.rooms[roomID] = struct{}{}
		return false, err
	}
	return true, nil
}

// Subscribed reports whether roomID receives console output.
func (s *Store) Subscribed(roomID ref.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the subscribed rooms sorted by ID.
func (s *Store) Rooms() []ref.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []ref.RoomID {
	rooms := make([]ref.RoomID, 0, len(s.rooms))
	for roomID := range s.rooms {
		rooms = append(rooms, roomID)
	}
	slices.SortFunc(rooms, func(a, b ref.RoomID) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return rooms
}

// save writes the store with write-to-temporary, fsync, rename. Called
// with mu held.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := codec.Marshal(subscriptionsDocument{
		Version: subscriptionsVersion,
		Rooms:   s.sortedLocked(),
		Updated: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("chat: encoding subscriptions: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("chat: creating temporary subscriptions file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("chat: writing subscriptions: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("chat: syncing subscriptions: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("chat: closing subscriptions: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("chat: renaming subscriptions into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(s.path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
