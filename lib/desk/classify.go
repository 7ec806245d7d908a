// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"strings"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// Text commands recognized in rooms the desk participates in.
const (
	closeCommand = "!close"
	orderCommand = "!order"
)

// closeEmoji is the reaction key on the pinned control notice that
// staff use to close a ticket.
const closeEmoji = "🔒"

// EventClass identifies which dispatch path an inbound event takes.
type EventClass int

const (
	// ClassIgnore covers everything the desk does not act on: its own
	// messages, notices from other bots, events in untracked rooms.
	ClassIgnore EventClass = iota

	// ClassUserMessage is a message from a user in their direct room,
	// relayed into the mapped ticket room (creating one on first
	// contact).
	ClassUserMessage

	// ClassRoomMessage is a staff message in a tracked ticket room,
	// relayed to the owner's direct room.
	ClassRoomMessage

	// ClassOrderCommand is "!order [code]" in a direct room, starting
	// a guided intake flow.
	ClassOrderCommand

	// ClassCloseRequest is "!close [reason]" or a 🔒 reaction in a
	// tracked ticket room. Staff membership is checked at dispatch so
	// a non-staff attempt can be declined rather than dropped.
	ClassCloseRequest

	// ClassSpaceJoin is a user joining the tenant space, triggering a
	// welcome message.
	ClassSpaceJoin
)

func (c EventClass) String() string {
	switch c {
	case ClassUserMessage:
		return "user-message"
	case ClassRoomMessage:
		return "room-message"
	case ClassOrderCommand:
		return "order-command"
	case ClassCloseRequest:
		return "close-request"
	case ClassSpaceJoin:
		return "space-join"
	default:
		return "ignore"
	}
}

// Classified is the tagged variant produced by Classify. Class selects
// the dispatch path; the remaining fields carry what that path needs.
type Classified struct {
	Class EventClass

	// User is the subject of the event: the direct-room owner for user
	// paths, the ticket owner for room paths, the joiner for space
	// joins.
	User ref.UserID

	// Room is where the event happened.
	Room ref.RoomID

	// Event is the raw timeline event.
	Event messaging.Event

	// Code is the service code argument of an order command. Empty
	// means the user asked for the menu.
	Code string

	// Reason is the free-text argument of a !close command.
	Reason string

	// Target is the event a close-request reaction annotates. Zero for
	// command-triggered close requests.
	Target ref.EventID
}

// Classify maps one timeline event to exactly one dispatch variant. It
// reads the ticket store and the direct-room registry but performs no
// network I/O, so classification decisions are testable in isolation.
func (d *Desk) Classify(event messaging.Event) Classified {
	ignore := Classified{Class: ClassIgnore, Room: event.RoomID, Event: event}

	// The desk never reacts to itself. This is the primary loop guard;
	// the m.notice check below covers other bots.
	if event.Sender == d.session.UserID() {
		return ignore
	}

	switch event.Type {
	case "m.room.member":
		return d.classifyMembership(event, ignore)
	case "m.reaction":
		return d.classifyReaction(event, ignore)
	case "m.room.message":
		return d.classifyMessage(event, ignore)
	}
	return ignore
}

// classifyMembership recognizes joins to the tenant space. All other
// membership traffic is ignored.
func (d *Desk) classifyMembership(event messaging.Event, ignore Classified) Classified {
	if event.RoomID != d.config.Space || event.StateKey == nil {
		return ignore
	}
	if membership, _ := event.Content["membership"].(string); membership != "join" {
		return ignore
	}
	joiner, err := ref.ParseUserID(*event.StateKey)
	if err != nil || joiner == d.session.UserID() {
		return ignore
	}
	return Classified{
		Class: ClassSpaceJoin,
		User:  joiner,
		Room:  event.RoomID,
		Event: event,
	}
}

// classifyReaction recognizes the 🔒 close reaction in tracked ticket
// rooms. The reaction must come from staff; casual reactions from the
// ticket owner are not close attempts and are dropped silently (the
// pinned control notice names the staff requirement).
func (d *Desk) classifyReaction(event messaging.Event, ignore Classified) Classified {
	owner, tracked := d.store.RoomUser(event.RoomID)
	if !tracked {
		return ignore
	}

	relates, ok := event.Content["m.relates_to"].(map[string]any)
	if !ok {
		return ignore
	}
	key, _ := relates["key"].(string)
	if key != closeEmoji {
		return ignore
	}
	if !d.isStaff(event.Sender) {
		return ignore
	}
	target, err := ref.ParseEventID(contentString(relates, "event_id"))
	if err != nil {
		return ignore
	}

	return Classified{
		Class:  ClassCloseRequest,
		User:   owner,
		Room:   event.RoomID,
		Event:  event,
		Target: target,
	}
}

// classifyMessage routes m.room.message events: close commands and
// staff replies in ticket rooms, order commands and relayable messages
// in direct rooms.
func (d *Desk) classifyMessage(event messaging.Event, ignore Classified) Classified {
	// Notices are bot output. A well-behaved relay never relays them,
	// which is what prevents two bridges from ping-ponging forever.
	if msgtype, _ := event.Content["msgtype"].(string); msgtype == "m.notice" {
		return ignore
	}
	body, _ := event.Content["body"].(string)

	if owner, tracked := d.store.RoomUser(event.RoomID); tracked {
		if reason, ok := commandArg(body, closeCommand); ok {
			return Classified{
				Class:  ClassCloseRequest,
				User:   owner,
				Room:   event.RoomID,
				Event:  event,
				Reason: reason,
			}
		}
		// The owner sees the ticket room directly; echoing their own
		// room messages back into their direct room would only double
		// them. Relay carries staff replies to users who stay in the DM.
		if event.Sender == owner {
			return ignore
		}
		return Classified{
			Class: ClassRoomMessage,
			User:  owner,
			Room:  event.RoomID,
			Event: event,
		}
	}

	if owner, direct := d.directRoomOwner(event.RoomID); direct && event.Sender == owner {
		// While a guided intake flow is collecting this user's replies,
		// the flow's own watcher consumes them; relaying would duplicate
		// every answer into the ticket room.
		if d.intakeActive(owner) {
			return ignore
		}
		if code, ok := commandArg(body, orderCommand); ok {
			return Classified{
				Class: ClassOrderCommand,
				User:  owner,
				Room:  event.RoomID,
				Event: event,
				Code:  code,
			}
		}
		return Classified{
			Class: ClassUserMessage,
			User:  owner,
			Room:  event.RoomID,
			Event: event,
		}
	}

	return ignore
}

// commandArg reports whether body invokes the named command and
// returns the trimmed argument text. Commands match as a whole word:
// "!close now" and "!close" match, "!closeout" does not.
func commandArg(body, command string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, command) {
		return "", false
	}
	rest := trimmed[len(command):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// contentString reads a string field from decoded event content,
// returning "" when absent or not a string.
func contentString(content map[string]any, key string) string {
	value, _ := content[key].(string)
	return value
}
