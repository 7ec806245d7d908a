// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"testing"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

func noticeEvent(room ref.RoomID, sender ref.UserID, body string) messaging.Event {
	event := messageEvent(room, sender, body)
	event.Content["msgtype"] = "m.notice"
	return event
}

func TestClassifyOwnEventsIgnored(t *testing.T) {
	h := newHarness(t)
	h.desk.RegisterDirectRoom(customer, dmRoomID)

	got := h.desk.Classify(messageEvent(dmRoomID, serviceUser, "hello"))
	if got.Class != ClassIgnore {
		t.Errorf("own message classified %s", got.Class)
	}
}

func TestClassifyDirectRoomMessages(t *testing.T) {
	h := newHarness(t)
	h.desk.RegisterDirectRoom(customer, dmRoomID)

	tests := []struct {
		name  string
		event messaging.Event
		class EventClass
		code  string
	}{
		{
			name:  "owner text",
			event: messageEvent(dmRoomID, customer, "where is my order?"),
			class: ClassUserMessage,
		},
		{
			name:  "owner notice ignored",
			event: noticeEvent(dmRoomID, customer, "automated reply"),
			class: ClassIgnore,
		},
		{
			name:  "non-owner ignored",
			event: messageEvent(dmRoomID, outsider, "hi"),
			class: ClassIgnore,
		},
		{
			name:  "unregistered room ignored",
			event: messageEvent(ref.MustParseRoomID("!stranger:local"), customer, "hello?"),
			class: ClassIgnore,
		},
		{
			name:  "order menu",
			event: messageEvent(dmRoomID, customer, "!order"),
			class: ClassOrderCommand,
		},
		{
			name:  "order with code",
			event: messageEvent(dmRoomID, customer, "  !order priority  "),
			class: ClassOrderCommand,
			code:  "priority",
		},
		{
			name:  "order prefix is plain text",
			event: messageEvent(dmRoomID, customer, "!ordering food"),
			class: ClassUserMessage,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := h.desk.Classify(test.event)
			if got.Class != test.class {
				t.Fatalf("class = %s, want %s", got.Class, test.class)
			}
			if got.Code != test.code {
				t.Errorf("code = %q, want %q", got.Code, test.code)
			}
			if test.class == ClassUserMessage && got.User != customer {
				t.Errorf("user = %s, want %s", got.User, customer)
			}
		})
	}
}

func TestClassifyDuringIntake(t *testing.T) {
	h := newHarness(t)
	h.desk.RegisterDirectRoom(customer, dmRoomID)
	h.desk.SetIntake(&stubIntake{active: true})

	// While a flow is collecting replies, the flow's watcher owns the
	// user's messages, commands included.
	for _, body := range []string{"my answer", "!order other"} {
		got := h.desk.Classify(messageEvent(dmRoomID, customer, body))
		if got.Class != ClassIgnore {
			t.Errorf("%q classified %s during intake", body, got.Class)
		}
	}
}

func TestClassifyTicketRoomMessages(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Put(customer, ticketRoomID, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct {
		name   string
		event  messaging.Event
		class  EventClass
		reason string
	}{
		{
			name:  "staff reply",
			event: messageEvent(ticketRoomID, staffUser, "On it!"),
			class: ClassRoomMessage,
		},
		{
			name:  "owner message not echoed back",
			event: messageEvent(ticketRoomID, customer, "thanks"),
			class: ClassIgnore,
		},
		{
			name:  "bot notice ignored",
			event: noticeEvent(ticketRoomID, staffUser, "build finished"),
			class: ClassIgnore,
		},
		{
			name:   "close command",
			event:  messageEvent(ticketRoomID, staffUser, "!close resolved upstream"),
			class:  ClassCloseRequest,
			reason: "resolved upstream",
		},
		{
			name:  "close from owner still classifies",
			event: messageEvent(ticketRoomID, customer, "!close"),
			class: ClassCloseRequest,
		},
		{
			name:  "close prefix is conversation",
			event: messageEvent(ticketRoomID, staffUser, "!closeout report attached"),
			class: ClassRoomMessage,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := h.desk.Classify(test.event)
			if got.Class != test.class {
				t.Fatalf("class = %s, want %s", got.Class, test.class)
			}
			if got.Reason != test.reason {
				t.Errorf("reason = %q, want %q", got.Reason, test.reason)
			}
			if test.class != ClassIgnore && got.User != customer {
				t.Errorf("user = %s, want ticket owner %s", got.User, customer)
			}
		})
	}
}

func TestClassifyCloseReaction(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Put(customer, ticketRoomID, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	target := nextTestEventID()

	got := h.desk.Classify(reactionEvent(ticketRoomID, staffUser, target, closeEmoji))
	if got.Class != ClassCloseRequest {
		t.Fatalf("class = %s, want %s", got.Class, ClassCloseRequest)
	}
	if got.Target != target {
		t.Errorf("target = %s, want %s", got.Target, target)
	}
	if got.User != customer {
		t.Errorf("user = %s, want %s", got.User, customer)
	}
}

func TestClassifyReactionIgnores(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Put(customer, ticketRoomID, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	target := nextTestEventID()

	tests := []struct {
		name  string
		event messaging.Event
	}{
		{"non-staff sender", reactionEvent(ticketRoomID, customer, target, closeEmoji)},
		{"other emoji", reactionEvent(ticketRoomID, staffUser, target, "👍")},
		{"untracked room", reactionEvent(dmRoomID, staffUser, target, closeEmoji)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := h.desk.Classify(test.event); got.Class != ClassIgnore {
				t.Errorf("class = %s, want ignore", got.Class)
			}
		})
	}
}

func TestClassifyMembership(t *testing.T) {
	h := newHarness(t)

	got := h.desk.Classify(joinEvent(spaceID, customer))
	if got.Class != ClassSpaceJoin || got.User != customer {
		t.Errorf("space join classified %s for %s", got.Class, got.User)
	}

	if got := h.desk.Classify(joinEvent(ticketRoomID, customer)); got.Class != ClassIgnore {
		t.Errorf("join outside the space classified %s", got.Class)
	}

	leave := joinEvent(spaceID, customer)
	leave.Content["membership"] = "leave"
	if got := h.desk.Classify(leave); got.Class != ClassIgnore {
		t.Errorf("leave classified %s", got.Class)
	}

	// A membership event about the service itself (someone else as
	// sender, service as state key) must not trigger a self-welcome.
	selfJoin := joinEvent(spaceID, customer)
	selfKey := serviceUser.String()
	selfJoin.StateKey = &selfKey
	if got := h.desk.Classify(selfJoin); got.Class != ClassIgnore {
		t.Errorf("service membership classified %s", got.Class)
	}
}

func TestClassifyUnknownEventType(t *testing.T) {
	h := newHarness(t)
	event := messaging.Event{
		EventID: nextTestEventID(),
		Type:    "m.room.topic",
		Sender:  staffUser,
		RoomID:  ticketRoomID,
		Content: map[string]any{"topic": "new topic"},
	}
	if got := h.desk.Classify(event); got.Class != ClassIgnore {
		t.Errorf("class = %s, want ignore", got.Class)
	}
}

func TestCommandArg(t *testing.T) {
	tests := []struct {
		body    string
		arg     string
		matched bool
	}{
		{"!close", "", true},
		{"!close  ", "", true},
		{"!close fixed in v2", "fixed in v2", true},
		{"  !close done", "done", true},
		{"!closeout", "", false},
		{"please !close this", "", false},
		{"", "", false},
	}
	for _, test := range tests {
		arg, matched := commandArg(test.body, closeCommand)
		if matched != test.matched || arg != test.arg {
			t.Errorf("commandArg(%q) = %q, %v; want %q, %v",
				test.body, arg, matched, test.arg, test.matched)
		}
	}
}
