// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// CloseOutcome describes how a close attempt ended.
type CloseOutcome int

const (
	// OutcomeClosed: the ticket is gone. The transcript was generated
	// and the room deleted (or its deletion failure recorded as a
	// warning).
	OutcomeClosed CloseOutcome = iota
	// OutcomeNotATicket: the room is not a tracked ticket.
	OutcomeNotATicket
	// OutcomeAlreadyClosing: another close for the same room is in
	// flight; this attempt did nothing.
	OutcomeAlreadyClosing
	// OutcomeTranscriptFailed: the transcript could not be produced.
	// The ticket remains open and the close can be retried.
	OutcomeTranscriptFailed
)

func (o CloseOutcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeNotATicket:
		return "not-a-ticket"
	case OutcomeAlreadyClosing:
		return "already-closing"
	case OutcomeTranscriptFailed:
		return "transcript-failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// CloseResult reports one close attempt. Warnings carry non-fatal
// failures (archival, closure message, room deletion) that did not
// stop the close; Err is set only for outcomes that did.
type CloseResult struct {
	Outcome        CloseOutcome
	User           ref.UserID
	TranscriptPath string
	ArchiveHash    string
	Warnings       []string
	Err            error
}

// beginClose claims the close guard for a room. Returns false if a
// close for the room is already in flight.
func (d *Desk) beginClose(room ref.RoomID) bool {
	d.closingMu.Lock()
	defer d.closingMu.Unlock()
	if _, active := d.closing[room]; active {
		return false
	}
	d.closing[room] = struct{}{}
	return true
}

func (d *Desk) endClose(room ref.RoomID) {
	d.closingMu.Lock()
	defer d.closingMu.Unlock()
	delete(d.closing, room)
}

// CloseTicket runs the full closure sequence for a ticket room:
// transcript, archival, closure message to the owner, staff log entry,
// mapping removal, room deletion. Concurrent calls for the same room
// are serialized by the close guard; exactly one produces the
// transcript and deletes the room.
//
// The transcript is the gate: if it cannot be generated, the ticket
// stays tracked and the room stays up, so no conversation is ever
// destroyed unrecorded. Past that gate the close always completes;
// later failures degrade to warnings.
func (d *Desk) CloseTicket(ctx context.Context, room ref.RoomID, requester ref.UserID, reason string) CloseResult {
	if !d.beginClose(room) {
		return CloseResult{Outcome: OutcomeAlreadyClosing}
	}
	defer d.endClose(room)

	owner, tracked := d.store.RoomUser(room)
	if !tracked {
		return CloseResult{Outcome: OutcomeNotATicket}
	}
	result := CloseResult{Outcome: OutcomeClosed, User: owner}

	d.notice(ctx, room, "Closing this ticket. Generating the transcript…")

	name := transcriptName(owner, d.clock.Now())
	path, err := d.transcripts.Generate(ctx, room, name)
	if err != nil {
		result.Outcome = OutcomeTranscriptFailed
		result.Err = opError("generate transcript", KindTranscript, err)
		return result
	}
	result.TranscriptPath = path

	content, err := os.ReadFile(path)
	if err != nil {
		// On disk but unreadable: nothing to archive or deliver, so
		// the close does not proceed. The ticket stays open.
		result.Outcome = OutcomeTranscriptFailed
		result.Err = opError("read transcript", KindTranscript, err)
		return result
	}

	if d.archive != nil {
		hash, err := d.archive.Put(filepath.Base(path), content)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("archive: %v", err))
			d.logger.Warn("transcript archival failed",
				"path", path,
				"error", err,
			)
		} else {
			result.ArchiveHash = hash.String()
		}
	}

	if err := d.sendClosureMessage(ctx, owner, path, content, reason); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("closure message: %v", err))
		d.logger.Warn("closure message failed",
			"user", owner.String(),
			"error", err,
		)
	}

	d.logClosure(ctx, owner, requester, reason, &result)

	// Mapping out before the room goes: a deletion that dies halfway
	// must never leave a tracked ticket pointing at a dead room.
	d.store.RemoveRoom(room)

	if err := d.deleteRoom(ctx, room); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("room deletion: %v", err))
		d.logger.Warn("ticket room deletion failed",
			"room_id", room.String(),
			"error", err,
		)
	}

	d.logger.Info("ticket closed",
		"room_id", room.String(),
		"user", owner.String(),
		"closed_by", requester.String(),
		"transcript", path,
	)
	return result
}

// handleCloseRequest dispatches a classified close request: a staff
// "!close" command or a 🔒 reaction on the pinned control message.
func (d *Desk) handleCloseRequest(ctx context.Context, classified Classified) {
	sender := classified.Event.Sender
	if !d.isStaff(sender) {
		d.notice(ctx, classified.Room, "Only staff can close tickets.")
		return
	}

	if !classified.Target.IsZero() && !d.isCloseControl(ctx, classified.Room, classified.Target) {
		// A 🔒 on an arbitrary message is conversation, not a close
		// request.
		d.logger.Debug("close reaction on non-control event ignored",
			"room_id", classified.Room.String(),
			"event_id", classified.Target.String(),
		)
		return
	}

	result := d.CloseTicket(ctx, classified.Room, sender, classified.Reason)
	switch result.Outcome {
	case OutcomeAlreadyClosing:
		d.notice(ctx, classified.Room, "This ticket is already being closed.")
	case OutcomeNotATicket:
		d.notice(ctx, classified.Room, "This room is not a tracked ticket.")
	case OutcomeTranscriptFailed:
		d.logger.Error("transcript generation failed",
			"room_id", classified.Room.String(),
			"error", result.Err,
		)
		d.notice(ctx, classified.Room,
			"Transcript generation failed; the ticket remains open. Try closing it again.")
	}
}

// isCloseControl reports whether the event is pinned in the room. The
// close control message is the only thing the service pins, so pinned
// membership is the test for "reaction on the control message".
func (d *Desk) isCloseControl(ctx context.Context, room ref.RoomID, target ref.EventID) bool {
	raw, err := d.session.GetStateEvent(ctx, room, "m.room.pinned_events", "")
	if err != nil {
		d.logger.Debug("pinned events lookup failed",
			"room_id", room.String(),
			"error", err,
		)
		return false
	}
	var pins struct {
		Pinned []string `json:"pinned"`
	}
	if err := json.Unmarshal(raw, &pins); err != nil {
		return false
	}
	for _, pin := range pins.Pinned {
		if pin == target.String() {
			return true
		}
	}
	return false
}

// sendClosureMessage tells the owner their ticket is closed and hands
// them the transcript as a file attachment. When the upload fails they
// still get the closure notice, just without the file.
func (d *Desk) sendClosureMessage(ctx context.Context, owner ref.UserID, path string, content []byte, reason string) error {
	dm, err := d.DirectRoom(ctx, owner)
	if err != nil {
		return fmt.Errorf("direct room: %w", err)
	}

	closing := "Your ticket has been closed."
	if reason != "" {
		closing = "Your ticket has been closed: " + reason + "."
	}

	filename := filepath.Base(path)
	mxcURI, err := d.session.UploadMedia(ctx, "text/plain; charset=utf-8", filename, bytes.NewReader(content))
	if err != nil {
		d.notice(ctx, dm, closing)
		return fmt.Errorf("upload transcript: %w", err)
	}

	d.notice(ctx, dm, closing+" The transcript of our conversation is attached.")
	fileMessage := messaging.NewFileMessage(filename, mxcURI, "text/plain; charset=utf-8", int64(len(content)))
	if _, err := d.session.SendMessage(ctx, dm, fileMessage); err != nil {
		return fmt.Errorf("send transcript: %w", err)
	}
	return nil
}

// logClosure posts the closure record to the staff log room.
func (d *Desk) logClosure(ctx context.Context, owner, requester ref.UserID, reason string, result *CloseResult) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "**Ticket closed** for %s by %s.", owner, requester)
	if reason != "" {
		fmt.Fprintf(&builder, " Reason: %s.", reason)
	}
	fmt.Fprintf(&builder, "\n\nTranscript: `%s`", result.TranscriptPath)
	if result.ArchiveHash != "" {
		fmt.Fprintf(&builder, "\nArchive: `%s`", result.ArchiveHash)
	}
	d.PostStaffLog(ctx, builder.String())
}

// deleteRoom removes a retired ticket room, through the server-side
// purge API when one is wired and by kick-and-leave otherwise.
func (d *Desk) deleteRoom(ctx context.Context, room ref.RoomID) error {
	if d.purger != nil {
		return d.purger.PurgeRoom(ctx, room)
	}
	return d.retireRoom(ctx, room)
}

// retireRoom empties and abandons a room without admin access: kick
// every other member, then leave and forget. The room dies when its
// last local member is gone.
func (d *Desk) retireRoom(ctx context.Context, room ref.RoomID) error {
	members, err := d.session.GetRoomMembers(ctx, room)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	self := d.session.UserID()
	for _, member := range members {
		if member.UserID == self {
			continue
		}
		if member.Membership != "join" && member.Membership != "invite" {
			continue
		}
		if err := d.session.KickUser(ctx, room, member.UserID, "ticket closed"); err != nil {
			d.logger.Warn("kick during room retirement failed",
				"room_id", room.String(),
				"user", member.UserID.String(),
				"error", err,
			)
		}
	}
	if err := d.session.LeaveRoom(ctx, room); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if err := d.session.ForgetRoom(ctx, room); err != nil {
		d.logger.Debug("forget after leave failed",
			"room_id", room.String(),
			"error", err,
		)
	}
	return nil
}

// transcriptName builds the transcript filename stem for a ticket:
// the owner's localpart (sanitized for the filesystem) plus a UTC
// close timestamp.
func transcriptName(owner ref.UserID, now time.Time) string {
	return sanitizeForFilename(owner.Localpart()) + "-" + now.UTC().Format("20060102-150405")
}

// sanitizeForFilename maps anything outside [A-Za-z0-9._-] to '-' so
// a hostile localpart cannot steer the transcript path.
func sanitizeForFilename(s string) string {
	if s == "" {
		return "user"
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '-'
		}
	}, s)
	// Dots alone could still form "." or ".."; a leading '-' confuses
	// tooling. Prefix such names.
	if mapped == "." || mapped == ".." || mapped[0] == '-' {
		return "u" + mapped
	}
	return mapped
}
