// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/lib/ref"
)

// Builtin command names.
const (
	CommandOutput          = "/output"
	CommandStopOutput      = "/stop_output"
	CommandHelp            = "/help"
	CommandRefreshCommands = "/refresh_commands"
)

// Builtins returns the chat builtin entries, for seeding the registry
// before the front end is created.
func Builtins() []console.Entry {
	return []console.Entry{
		{Name: CommandOutput, Description: "Send console output to this room"},
		{Name: CommandStopOutput, Description: "Stop sending console output to this room"},
		{Name: CommandHelp, Description: "List available commands"},
		{Name: CommandRefreshCommands, Description: "Reload the command list from the console"},
	}
}

func (f *Frontend) registerBuiltins() {
	f.router.Handle(CommandOutput, f.handleOutput)
	f.router.Handle(CommandStopOutput, f.handleStopOutput)
	f.router.Handle(CommandHelp, f.handleHelp)
	f.router.Handle(CommandRefreshCommands, f.handleRefreshCommands)
}

// originRoom resolves the room a builtin was sent from. Builtins issued
// from elsewhere (the control API, the scheduler) have no room.
func originRoom(command console.Command) (ref.RoomID, error) {
	roomID, err := ref.ParseRoomID(string(command.Origin))
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("%s must be sent from a chat room: %w", command.Name, console.ErrWrongOrigin)
	}
	return roomID, nil
}

func (f *Frontend) handleOutput(ctx context.Context, command console.Command) error {
	roomID, err := originRoom(command)
	if err != nil {
		return err
	}
	added, err := f.store.Subscribe(roomID)
	if err != nil {
		return err
	}
	if added {
		f.logger.Info("room subscribed to console output", "room_id", roomID.String())
		f.reply(ctx, roomID, "console output will be sent to this room")
	} else {
		f.reply(ctx, roomID, "this room already receives console output")
	}
	return nil
}

func (f *Frontend) handleStopOutput(ctx context.Context, command console.Command) error {
	roomID, err := originRoom(command)
	if err != nil {
		return err
	}
	removed, err := f.store.Unsubscribe(roomID)
	if err != nil {
		return err
	}
	if removed {
		f.logger.Info("room unsubscribed from console output", "room_id", roomID.String())
		f.reply(ctx, roomID, "console output will no longer be sent to this room")
	} else {
		f.reply(ctx, roomID, "this room does not receive console output")
	}
	return nil
}

func (f *Frontend) handleHelp(ctx context.Context, command console.Command) error {
	roomID, err := originRoom(command)
	if err != nil {
		return err
	}
	text, html, err := RenderHelp(f.registry.Snapshot())
	if err != nil {
		return err
	}
	f.replyFormatted(ctx, roomID, text, html)
	return nil
}

func (f *Frontend) handleRefreshCommands(ctx context.Context, command console.Command) error {
	if f.refresher == nil {
		return fmt.Errorf("chat: refreshing commands is not available")
	}
	if err := f.refresher.RefreshCommands(ctx, command.Origin); err != nil {
		return err
	}
	if roomID, err := originRoom(command); err == nil {
		f.reply(ctx, roomID, "refreshing the command list")
	}
	return nil
}

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownRenderer
}

// RenderHelp formats a command table as a plain-text body and an HTML
// body. The HTML is rendered from Markdown.
func RenderHelp(table *console.Table) (text, html string, err error) {
	var plain, source strings.Builder
	plain.WriteString("Commands:")
	source.WriteString("**Commands**\n\n")
	for _, entry := range table.Entries() {
		plain.WriteString("\n" + entry.Name)
		fmt.Fprintf(&source, "- `%s`", entry.Name)
		if entry.Description != "" {
			plain.WriteString(" - " + entry.Description)
			source.WriteString(" " + escapeMarkdown(entry.Description))
		}
		source.WriteString("\n")
	}

	var rendered bytes.Buffer
	if err := markdown().Convert([]byte(source.String()), &rendered); err != nil {
		return "", "", fmt.Errorf("chat: rendering help: %w", err)
	}
	return plain.String(), rendered.String(), nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
	"<", `\<`, ">", `\>`, "[", `\[`, "]", `\]`, "#", `\#`, "|", `\|`, "~", `\~`,
)

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
