// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// CommandMarker prefixes every remote command name.
const CommandMarker = "/"

// ExitCommand is always removed from compiled tables: routing it would
// stop the console process.
const ExitCommand = "/exit"

// Kind says how a command is executed.
type Kind int

const (
	// Forwarded commands come from the console's help listing and are
	// rewritten into console syntax and injected.
	Forwarded Kind = iota

	// Builtin commands are handled by the bridge itself.
	Builtin
)

func (k Kind) String() string {
	switch k {
	case Forwarded:
		return "forwarded"
	case Builtin:
		return "builtin"
	default:
		return "unknown"
	}
}

// Entry is one routable command.
type Entry struct {
	// Name is the remote form, for example "/ban_player".
	Name        string
	Description string
	Kind        Kind

	// ConsoleName is the name exactly as the help listing spelled it.
	// Empty for builtins.
	ConsoleName string
}

// ToRemoteName maps a console command name to its remote form:
// "ban-player" becomes "/ban_player".
func ToRemoteName(name string) string {
	return CommandMarker + strings.ReplaceAll(name, "-", "_")
}

// ToConsoleName reverses ToRemoteName. Entries compiled from a help
// listing carry the original spelling in ConsoleName; this is the
// fallback when none is known.
func ToConsoleName(remote string) string {
	return strings.ReplaceAll(strings.TrimPrefix(remote, CommandMarker), "_", "-")
}

// CompileHelp parses a help listing into forwarded entries keyed by
// remote name. Each line is "name description": the name ends at the
// first whitespace run, a leading "-" and trailing periods are trimmed
// from the description. Lines without a separator are skipped. When two
// console names normalize to the same remote name the first one wins.
// Names in deny, and ExitCommand, are never included.
func CompileHelp(text string, deny []string) map[string]Entry {
	denied := denySet(deny)
	entries := make(map[string]Entry)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRightFunc(strings.TrimLeftFunc(line, unicode.IsSpace), unicode.IsSpace)
		separator := strings.IndexFunc(line, unicode.IsSpace)
		if separator <= 0 {
			continue
		}
		consoleName := line[:separator]
		remoteName := ToRemoteName(consoleName)
		if _, skip := denied[remoteName]; skip {
			continue
		}
		if _, exists := entries[remoteName]; exists {
			continue
		}
		entries[remoteName] = Entry{
			Name:        remoteName,
			Description: cleanDescription(line[separator:]),
			Kind:        Forwarded,
			ConsoleName: consoleName,
		}
	}
	return entries
}

func cleanDescription(raw string) string {
	description := strings.TrimSpace(raw)
	description = strings.TrimSpace(strings.TrimPrefix(description, "-"))
	return strings.TrimRight(description, ".")
}

func denySet(deny []string) map[string]struct{} {
	denied := map[string]struct{}{ExitCommand: {}}
	for _, name := range deny {
		if !strings.HasPrefix(name, CommandMarker) {
			name = ToRemoteName(name)
		}
		denied[name] = struct{}{}
	}
	return denied
}

// Table is an immutable snapshot of the routable commands. Readers
// obtain one from Registry.Snapshot and may use it without locking.
type Table struct {
	entries    map[string]Entry
	names      []string
	generation uint64
}

func newTable(entries map[string]Entry, generation uint64) *Table {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Table{entries: entries, names: names, generation: generation}
}

// Lookup returns the entry for a remote command name.
func (t *Table) Lookup(name string) (Entry, bool) {
	entry, ok := t.entries[name]
	return entry, ok
}

// Entries returns all entries sorted by name.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, len(t.names))
	for index, name := range t.names {
		entries[index] = t.entries[name]
	}
	return entries
}

// Names returns all remote command names, sorted. The slice must not be
// modified.
func (t *Table) Names() []string {
	return t.names
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Forwarded returns the number of entries compiled from help output.
func (t *Table) Forwarded() int {
	count := 0
	for _, entry := range t.entries {
		if entry.Kind == Forwarded {
			count++
		}
	}
	return count
}

// Generation counts compiled help listings. Zero means the console has
// not answered the first help request yet.
func (t *Table) Generation() uint64 {
	return t.generation
}

// Registry publishes the current command table. Builtins are fixed at
// construction; each Refresh replaces the whole forwarded set by
// swapping in a new Table, so concurrent lookups see either the old
// table or the new one in full.
type Registry struct {
	builtins map[string]Entry
	deny     []string

	current   atomic.Pointer[Table]
	refreshMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRegistry seeds a registry with builtin entries. Their Kind is
// forced to Builtin.
func NewRegistry(builtins []Entry, deny []string) *Registry {
	seeded := make(map[string]Entry, len(builtins))
	for _, entry := range builtins {
		entry.Kind = Builtin
		entry.ConsoleName = ""
		seeded[entry.Name] = entry
	}
	registry := &Registry{
		builtins: seeded,
		deny:     append([]string(nil), deny...),
		ready:    make(chan struct{}),
	}
	registry.current.Store(newTable(copyEntries(seeded, 0), 0))
	return registry
}

// Refresh compiles a help listing and publishes the resulting table.
// Builtins are never overwritten. Forwarded entries missing from the
// new listing disappear.
func (r *Registry) Refresh(helpText string) *Table {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	compiled := CompileHelp(helpText, r.deny)
	entries := copyEntries(r.builtins, len(compiled))
	for name, entry := range compiled {
		if _, builtin := entries[name]; builtin {
			continue
		}
		entries[name] = entry
	}

	table := newTable(entries, r.current.Load().generation+1)
	r.current.Store(table)
	r.readyOnce.Do(func() { close(r.ready) })
	return table
}

// Snapshot returns the current table.
func (r *Registry) Snapshot() *Table {
	return r.current.Load()
}

// Lookup resolves a remote command name against the current table.
func (r *Registry) Lookup(name string) (Entry, bool) {
	return r.current.Load().Lookup(name)
}

// Ready is closed once the first help listing has been compiled.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

func copyEntries(source map[string]Entry, extra int) map[string]Entry {
	entries := make(map[string]Entry, len(source)+extra)
	for name, entry := range source {
		entries[name] = entry
	}
	return entries
}
