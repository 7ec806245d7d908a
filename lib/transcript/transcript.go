// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript renders a ticket room's full message history to a
// plain-text file.
//
// Generation is strict: any history-read or file-write failure returns
// an error and leaves no partial file behind. The close coordinator
// relies on this, it never deletes a ticket room whose transcript did
// not land on disk.
package transcript

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

const historyPageSize = 100

const headerRule = "============================================================"

// Generator writes ticket transcripts into a fixed directory.
type Generator struct {
	session messaging.Session
	dir     string
	service ref.UserID
}

// NewGenerator returns a Generator writing to dir. Messages sent by
// service are marked as such in the output.
func NewGenerator(session messaging.Session, dir string, service ref.UserID) *Generator {
	return &Generator{session: session, dir: dir, service: service}
}

// Generate fetches the room's complete history and writes it to
// "{dir}/{name}.txt", oldest message first. name doubles as the room
// title in the transcript header; callers pass the room's display
// name. Returns the path of the written file.
func (g *Generator) Generate(ctx context.Context, room ref.RoomID, name string) (string, error) {
	events, err := g.fetchHistory(ctx, room)
	if err != nil {
		return "", err
	}

	names, err := g.memberNames(ctx, room)
	if err != nil {
		return "", err
	}

	path := filepath.Join(g.dir, name+".txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating transcript %s: %w", path, err)
	}
	success := false
	defer func() {
		if !success {
			file.Close()
			os.Remove(path)
		}
	}()

	writer := bufio.NewWriter(file)
	writeHeader(writer, name, room)
	for _, event := range events {
		if event.Type != "m.room.message" {
			continue
		}
		g.writeBlock(writer, event, names)
	}

	// Write errors are sticky in bufio; they all surface here.
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("writing transcript %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing transcript %s: %w", path, err)
	}
	success = true
	return path, nil
}

// fetchHistory pages the room's timeline backward from the live edge
// until the server signals exhaustion, then reverses to oldest-first.
func (g *Generator) fetchHistory(ctx context.Context, room ref.RoomID) ([]messaging.Event, error) {
	var events []messaging.Event
	from := ""
	for {
		response, err := g.session.RoomMessages(ctx, room, messaging.RoomMessagesOptions{
			From:      from,
			Direction: "b",
			Limit:     historyPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("reading history of %s: %w", room, err)
		}
		events = append(events, response.Chunk...)
		// Exhaustion is an empty chunk or a missing end token; a token
		// that stopped advancing means the same.
		if len(response.Chunk) == 0 || response.End == "" || response.End == from {
			break
		}
		from = response.End
	}
	slices.Reverse(events)
	return events, nil
}

// memberNames maps room members to display names. Members without one
// fall back to their localpart at render time.
func (g *Generator) memberNames(ctx context.Context, room ref.RoomID) (map[ref.UserID]string, error) {
	members, err := g.session.GetRoomMembers(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("reading members of %s: %w", room, err)
	}
	names := make(map[ref.UserID]string, len(members))
	for _, member := range members {
		if member.DisplayName != "" {
			names[member.UserID] = member.DisplayName
		}
	}
	return names, nil
}

func writeHeader(writer *bufio.Writer, name string, room ref.RoomID) {
	fmt.Fprintln(writer, headerRule)
	fmt.Fprintln(writer, "Frontdesk Ticket Transcript")
	fmt.Fprintf(writer, "Room: %s\n", name)
	fmt.Fprintf(writer, "Room ID: %s\n", room)
	fmt.Fprintf(writer, "Generated: %s\n", formatTimestamp(time.Now()))
	fmt.Fprintln(writer, headerRule)
	fmt.Fprintln(writer)
}

// writeBlock renders one m.room.message event: an attribution line,
// the body (or a sentinel), an attachment line when the message
// carries uploaded media, and a rich-content marker when an HTML body
// is present.
func (g *Generator) writeBlock(writer *bufio.Writer, event messaging.Event, names map[ref.UserID]string) {
	timestamp := formatTimestamp(time.UnixMilli(event.OriginServerTS))
	author := names[event.Sender]
	if author == "" {
		author = event.Sender.Localpart()
	}
	if event.Sender == g.service {
		fmt.Fprintf(writer, "[%s] [service] %s (%s)\n", timestamp, author, event.Sender)
	} else {
		fmt.Fprintf(writer, "[%s] %s (%s)\n", timestamp, author, event.Sender)
	}

	body, _ := event.Content["body"].(string)
	if body == "" {
		body = "(no text content)"
	}
	fmt.Fprintln(writer, body)

	if url, ok := event.Content["url"].(string); ok && url != "" && isAttachmentType(event.Content["msgtype"]) {
		fmt.Fprintf(writer, "[attachment] %s (%s): %s\n",
			attachmentName(event.Content), attachmentSize(event.Content), url)
	}

	if format, ok := event.Content["format"].(string); ok && format == "org.matrix.custom.html" {
		if formatted, ok := event.Content["formatted_body"].(string); ok && formatted != "" {
			fmt.Fprintln(writer, "[embeds: 1]")
		}
	}

	fmt.Fprintln(writer)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

func isAttachmentType(msgtype any) bool {
	switch msgtype {
	case "m.file", "m.image", "m.video", "m.audio":
		return true
	}
	return false
}

func attachmentName(content map[string]any) string {
	if filename, ok := content["filename"].(string); ok && filename != "" {
		return filename
	}
	if body, ok := content["body"].(string); ok && body != "" {
		return body
	}
	return "unnamed"
}

func attachmentSize(content map[string]any) string {
	info, ok := content["info"].(map[string]any)
	if !ok {
		return "unknown size"
	}
	size, ok := info["size"].(float64)
	if !ok {
		return "unknown size"
	}
	return fmt.Sprintf("%d bytes", int64(size))
}
