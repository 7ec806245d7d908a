// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// noTextContent substitutes for an empty message body so a relayed
// notice is never blank.
const noTextContent = "(no text content)"

// relayAck is the reaction placed on a source message once its relay
// landed on the other side.
const relayAck = "✅"

// relayUserMessage carries a direct-room message into the user's
// ticket room, creating the ticket on first contact. Terminal
// acknowledgment: a ✅ reaction on the user's message when the relay
// lands, a notice in the direct room when it cannot.
func (d *Desk) relayUserMessage(ctx context.Context, classified Classified) {
	user := classified.User

	room, open := d.store.UserRoom(user)
	if !open {
		created, err := d.CreateTicket(ctx, user, ref.ServiceCode{}, "")
		if err != nil {
			var exists *TicketExistsError
			if !errors.As(err, &exists) {
				d.declineTicket(ctx, classified.Room, err)
				return
			}
			// Raced an intake completion; the message belongs in the
			// winner's room, which CreateTicket returned.
		}
		room = created
	}

	author := attribution(d.displayNameFor(ctx, user), user)
	if err := d.relayContent(ctx, room, author, classified.Event); err != nil {
		if kindOf(err) == KindNotFound {
			// The ticket room vanished out from under the mapping
			// (deleted by an admin, or purge raced us). Clear the stale
			// pair; the user's next message opens a fresh ticket.
			d.store.RemoveRoom(room)
			d.logger.Warn("ticket room vanished, mapping cleared",
				"user", user.String(),
				"room_id", room.String(),
			)
			d.notice(ctx, classified.Room,
				"Your ticket room no longer exists, so the ticket has been cleared. Send another message to open a new one.")
			return
		}
		d.logger.Error("relay into ticket room failed",
			"user", user.String(),
			"room_id", room.String(),
			"error", err,
		)
		d.notice(ctx, classified.Room,
			"Sorry — your message could not be delivered to the ticket. Please try again.")
		return
	}

	d.react(ctx, classified.Room, classified.Event.EventID, relayAck)
}

// relayRoomMessage carries a staff message from a ticket room to the
// owner's direct room, annotated with the sender. Delivery failure is
// reported back into the ticket room, never swallowed.
func (d *Desk) relayRoomMessage(ctx context.Context, classified Classified) {
	owner := classified.User

	dm, err := d.DirectRoom(ctx, owner)
	if err != nil {
		d.reportDeliveryFailure(ctx, classified.Room, owner, err)
		return
	}

	sender := classified.Event.Sender
	author := attribution(d.displayNameFor(ctx, sender), sender)
	if err := d.relayContent(ctx, dm, author, classified.Event); err != nil {
		if kindOf(err) == KindNotFound {
			// Stale direct room. Drop it; the next outbound message
			// creates a fresh one.
			d.unregisterDirectRoom(dm)
		}
		d.reportDeliveryFailure(ctx, classified.Room, owner, err)
		return
	}

	d.react(ctx, classified.Room, classified.Event.EventID, relayAck)
}

// relayContent sends the relayed notice for one message event into the
// destination room: an attributed body line (sentinel for empty
// bodies), an attachment summary line, and a rich-content marker, in
// the same shape the transcript uses. The notice send is the relay —
// its error is returned. A carried attachment is then re-uploaded
// best-effort; a failed re-upload never undoes the delivered notice.
func (d *Desk) relayContent(ctx context.Context, room ref.RoomID, author string, event messaging.Event) error {
	body, _ := event.Content["body"].(string)
	if body == "" {
		body = noTextContent
	}

	var builder strings.Builder
	builder.WriteString(author)
	builder.WriteString(": ")
	builder.WriteString(body)

	att := attachmentOf(event.Content)
	if att != nil {
		builder.WriteString("\n")
		builder.WriteString(att.summary())
	}
	if hasRichContent(event.Content) {
		builder.WriteString("\n[embeds: 1]")
	}

	if _, err := d.session.SendMessage(ctx, room, messaging.NewNotice(builder.String())); err != nil {
		return err
	}

	if att != nil {
		d.reuploadAttachment(ctx, room, att)
	}
	return nil
}

// reuploadAttachment copies an attachment to the destination room as a
// real media event: download by MXC URI, upload, send. Best-effort —
// the summary line in the relayed notice already names the original.
func (d *Desk) reuploadAttachment(ctx context.Context, room ref.RoomID, att *attachment) {
	download, err := d.session.DownloadMedia(ctx, att.url)
	if err != nil {
		d.logger.Warn("attachment download failed",
			"url", att.url,
			"error", err,
		)
		return
	}
	defer download.Body.Close()

	contentType := download.ContentType
	if contentType == "" {
		contentType = att.mimeType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	mxcURI, err := d.session.UploadMedia(ctx, contentType, att.name, download.Body)
	if err != nil {
		d.logger.Warn("attachment re-upload failed",
			"name", att.name,
			"error", err,
		)
		return
	}

	size := download.Size
	if size < 0 {
		size = att.size
	}
	var content messaging.MessageContent
	if att.image {
		content = messaging.NewImageMessage(att.name, mxcURI, contentType, size)
	} else {
		content = messaging.NewFileMessage(att.name, mxcURI, contentType, size)
	}
	if _, err := d.session.SendMessage(ctx, room, content); err != nil {
		d.logger.Warn("relayed attachment send failed",
			"room_id", room.String(),
			"name", att.name,
			"error", err,
		)
	}
}

// declineTicket tells a user their ticket could not be created. A
// permission failure also lands in the staff log: it means the service
// account's power levels are wrong, which only an operator can fix.
func (d *Desk) declineTicket(ctx context.Context, dm ref.RoomID, err error) {
	d.logger.Error("ticket creation failed", "error", err)

	var op *OpError
	if errors.As(err, &op) && op.Kind == KindPermissionDenied {
		d.notice(ctx, dm, "Sorry — I am not allowed to create ticket rooms right now. Please contact staff directly.")
		d.PostStaffLog(ctx, "⚠ **Ticket provisioning failed with a permission error.** Check the service account's power levels.")
		return
	}
	d.notice(ctx, dm, "Sorry — I could not open a ticket for you right now. Please try again in a moment.")
}

// reportDeliveryFailure posts into the ticket room when a message
// could not reach the owner's direct room.
func (d *Desk) reportDeliveryFailure(ctx context.Context, room ref.RoomID, owner ref.UserID, err error) {
	d.logger.Warn("relay to user failed",
		"user", owner.String(),
		"room_id", room.String(),
		"error", err,
	)
	d.notice(ctx, room, fmt.Sprintf("⚠ Could not deliver that message to %s: %s.", owner, deliveryReason(err)))
}

// deliveryReason renders a failure as a short phrase for the ticket
// room. The raw error goes to the log, not the room.
func deliveryReason(err error) string {
	var op *OpError
	kind := kindOf(err)
	if errors.As(err, &op) {
		kind = op.Kind
	}
	switch kind {
	case KindPermissionDenied:
		return "the service is not allowed to message them"
	case KindNotFound:
		return "their direct room no longer exists"
	default:
		return "the homeserver rejected the delivery"
	}
}

// attribution renders "Display Name (@user:server)" for relay lines,
// collapsing to just the ID when no display name is known.
func attribution(name string, user ref.UserID) string {
	if name == user.String() {
		return name
	}
	return name + " (" + user.String() + ")"
}

// attachment is the media payload of a message event, extracted for
// summarizing and re-uploading.
type attachment struct {
	name     string
	url      string
	mimeType string
	size     int64
	image    bool
}

// summary renders the attachment line of a relayed notice, matching
// the transcript's attachment line format.
func (a *attachment) summary() string {
	size := "unknown size"
	if a.size > 0 {
		size = fmt.Sprintf("%d bytes", a.size)
	}
	return fmt.Sprintf("[attachment] %s (%s): %s", a.name, size, a.url)
}

// attachmentOf extracts the attachment from message content, or nil
// for text-only messages. Encrypted attachments (a "file" object
// instead of a plain URL) are not relayable and summarize as absent.
func attachmentOf(content map[string]any) *attachment {
	switch content["msgtype"] {
	case "m.file", "m.image", "m.video", "m.audio":
	default:
		return nil
	}
	url, _ := content["url"].(string)
	if url == "" {
		return nil
	}

	att := &attachment{
		url:   url,
		image: content["msgtype"] == "m.image",
	}
	if filename, ok := content["filename"].(string); ok && filename != "" {
		att.name = filename
	} else if body, ok := content["body"].(string); ok && body != "" {
		att.name = body
	} else {
		att.name = "unnamed"
	}
	if info, ok := content["info"].(map[string]any); ok {
		att.mimeType, _ = info["mimetype"].(string)
		if size, ok := info["size"].(float64); ok {
			att.size = int64(size)
		}
	}
	return att
}

// hasRichContent reports whether the event carries an HTML-formatted
// body, surfaced in relays as an embed marker.
func hasRichContent(content map[string]any) bool {
	if format, _ := content["format"].(string); format != "org.matrix.custom.html" {
		return false
	}
	formatted, _ := content["formatted_body"].(string)
	return formatted != ""
}
