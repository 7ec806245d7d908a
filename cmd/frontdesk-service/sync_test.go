// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bureau-foundation/frontdesk/lib/desk"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

func messageEvent(room ref.RoomID, sender ref.UserID, body string) messaging.Event {
	return messaging.Event{
		EventID: ref.MustParseEventID("$msg-1"),
		Type:    "m.room.message",
		Sender:  sender,
		RoomID:  room,
		Content: map[string]any{"msgtype": "m.text", "body": body},
	}
}

func memberEvent(room ref.RoomID, sender, subject ref.UserID, membership string, direct bool) messaging.Event {
	stateKey := subject.String()
	content := map[string]any{"membership": membership}
	if direct {
		content["is_direct"] = true
	}
	return messaging.Event{
		EventID:  ref.MustParseEventID("$member-1"),
		Type:     "m.room.member",
		Sender:   sender,
		RoomID:   room,
		StateKey: &stateKey,
		Content:  content,
	}
}

func powerEvent(room ref.RoomID, users map[string]any) messaging.Event {
	stateKey := ""
	return messaging.Event{
		EventID:  ref.MustParseEventID("$power-1"),
		Type:     "m.room.power_levels",
		Sender:   serviceUser,
		RoomID:   room,
		StateKey: &stateKey,
		Content:  map[string]any{"users": users},
	}
}

func TestSyncFilterShape(t *testing.T) {
	var filter struct {
		Room struct {
			Timeline struct {
				Types []string `json:"types"`
				Limit int      `json:"limit"`
			} `json:"timeline"`
			State struct {
				Types []string `json:"types"`
			} `json:"state"`
		} `json:"room"`
	}
	if err := json.Unmarshal([]byte(syncFilter), &filter); err != nil {
		t.Fatalf("sync filter is not valid JSON: %v", err)
	}

	want := map[string]bool{
		"m.room.message":      false,
		"m.reaction":          false,
		"m.room.member":       false,
		"m.room.power_levels": false,
	}
	for _, eventType := range filter.Room.Timeline.Types {
		if _, relevant := want[eventType]; relevant {
			want[eventType] = true
		}
	}
	for eventType, seen := range want {
		if !seen {
			t.Errorf("timeline filter missing %s", eventType)
		}
	}
	if filter.Room.Timeline.Limit == 0 {
		t.Error("timeline limit not set")
	}
}

func TestPowerLevelUsers(t *testing.T) {
	levels := powerLevelUsers(map[string]any{
		"users": map[string]any{
			staffUser.String(): float64(100),
			customer.String():  float64(0),
			"not a user id":    float64(50),
			"@weird:local":     "fifty",
		},
	})

	if len(levels) != 2 {
		t.Fatalf("levels = %v, want two valid entries", levels)
	}
	if levels[staffUser] != 100 {
		t.Errorf("staff level = %d", levels[staffUser])
	}
	if levels[customer] != 0 {
		t.Errorf("customer level = %d", levels[customer])
	}
}

func TestPowerLevelUsersEmptyContent(t *testing.T) {
	if levels := powerLevelUsers(map[string]any{}); len(levels) != 0 {
		t.Errorf("levels from empty content = %v", levels)
	}
}

func TestInviteIsDirect(t *testing.T) {
	direct := messaging.InvitedRoom{InviteState: messaging.StateSection{Events: []messaging.Event{
		memberEvent(dmRoomID, customer, serviceUser, "invite", true),
	}}}
	inviter, ok := inviteIsDirect(serviceUser, direct)
	if !ok {
		t.Fatal("direct invite not recognized")
	}
	if inviter != customer {
		t.Errorf("inviter = %s", inviter)
	}

	plain := messaging.InvitedRoom{InviteState: messaging.StateSection{Events: []messaging.Event{
		memberEvent(ticketRoomID, customer, serviceUser, "invite", false),
	}}}
	if _, ok := inviteIsDirect(serviceUser, plain); ok {
		t.Error("plain invite treated as direct")
	}

	// The flag only counts on the service's own membership event.
	other := messaging.InvitedRoom{InviteState: messaging.StateSection{Events: []messaging.Event{
		memberEvent(dmRoomID, customer, staffUser, "invite", true),
	}}}
	if _, ok := inviteIsDirect(serviceUser, other); ok {
		t.Error("someone else's membership treated as the service's")
	}
}

func TestDirectPartner(t *testing.T) {
	twoParty := []messaging.Event{
		memberEvent(dmRoomID, serviceUser, serviceUser, "join", false),
		memberEvent(dmRoomID, customer, customer, "join", false),
	}
	partner, ok := directPartner(serviceUser, twoParty)
	if !ok || partner != customer {
		t.Errorf("partner = %v, %v", partner, ok)
	}

	threeParty := append(twoParty, memberEvent(dmRoomID, staffUser, staffUser, "join", false))
	if _, ok := directPartner(serviceUser, threeParty); ok {
		t.Error("three-member room treated as direct")
	}

	left := []messaging.Event{
		memberEvent(dmRoomID, serviceUser, serviceUser, "join", false),
		memberEvent(dmRoomID, customer, customer, "leave", false),
	}
	if _, ok := directPartner(serviceUser, left); ok {
		t.Error("departed member counted as a partner")
	}
}

// joinResponse builds an incremental sync response with joined-room
// timelines.
func joinResponse(rooms map[ref.RoomID][]messaging.Event) *messaging.SyncResponse {
	join := make(map[ref.RoomID]messaging.JoinedRoom, len(rooms))
	for roomID, events := range rooms {
		join[roomID] = messaging.JoinedRoom{Timeline: messaging.TimelineSection{Events: events}}
	}
	return &messaging.SyncResponse{
		NextBatch: "next",
		Rooms:     messaging.RoomsSection{Join: join},
	}
}

func TestHandleSyncAcceptsDirectInvite(t *testing.T) {
	env := newTestEnv(t)

	var joined []ref.RoomID
	env.session.joinRoom = func(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
		joined = append(joined, roomID)
		return roomID, nil
	}

	env.relay.handleSync(context.Background(), &messaging.SyncResponse{
		Rooms: messaging.RoomsSection{
			Invite: map[ref.RoomID]messaging.InvitedRoom{
				dmRoomID: {InviteState: messaging.StateSection{Events: []messaging.Event{
					memberEvent(dmRoomID, customer, serviceUser, "invite", true),
				}}},
			},
		},
	})

	if len(joined) != 1 || joined[0] != dmRoomID {
		t.Fatalf("joined = %v", joined)
	}

	// Registration makes the customer's messages in that room relay
	// material.
	got := env.relay.desk.Classify(messageEvent(dmRoomID, customer, "hello"))
	if got.Class != desk.ClassUserMessage {
		t.Errorf("classified as %s, want user-message", got.Class)
	}
}

func TestHandleSyncDetectsUnflaggedDirectInvite(t *testing.T) {
	env := newTestEnv(t)

	env.session.joinRoom = func(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
		return roomID, nil
	}
	env.session.getRoomMembers = func(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error) {
		return []messaging.RoomMember{
			{UserID: serviceUser, Membership: "join"},
			{UserID: customer, Membership: "invite"},
		}, nil
	}

	env.relay.handleSync(context.Background(), &messaging.SyncResponse{
		Rooms: messaging.RoomsSection{
			Invite: map[ref.RoomID]messaging.InvitedRoom{
				dmRoomID: {InviteState: messaging.StateSection{Events: []messaging.Event{
					memberEvent(dmRoomID, customer, serviceUser, "invite", false),
				}}},
			},
		},
	})

	got := env.relay.desk.Classify(messageEvent(dmRoomID, customer, "hello"))
	if got.Class != desk.ClassUserMessage {
		t.Errorf("classified as %s, want user-message", got.Class)
	}
}

func TestHandleSyncPowerPromotion(t *testing.T) {
	env := newTestEnv(t)
	env.openTicket(customer, ticketRoomID, ref.ServiceCode{})
	promoted := ref.MustParseUserID("@lead:local")

	reaction := messaging.Event{
		EventID: ref.MustParseEventID("$react-1"),
		Type:    "m.reaction",
		Sender:  promoted,
		RoomID:  ticketRoomID,
		Content: map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.annotation",
				"event_id": "$the-control",
				"key":      "🔒",
			},
		},
	}

	if got := env.relay.desk.Classify(reaction); got.Class != desk.ClassIgnore {
		t.Fatalf("reaction from unprivileged user classified as %s", got.Class)
	}

	env.relay.handleSync(context.Background(), joinResponse(map[ref.RoomID][]messaging.Event{
		spaceID: {powerEvent(spaceID, map[string]any{promoted.String(): float64(80)})},
	}))

	if got := env.relay.desk.Classify(reaction); got.Class != desk.ClassCloseRequest {
		t.Errorf("reaction after promotion classified as %s, want close-request", got.Class)
	}
}

// A user message arriving through the sync loop opens a ticket: the
// full first-contact path from /sync batch to provisioned room.
func TestHandleSyncRoutesFirstContact(t *testing.T) {
	env := newTestEnv(t)
	env.relay.desk.RegisterDirectRoom(customer, dmRoomID)

	env.relay.handleSync(context.Background(), joinResponse(map[ref.RoomID][]messaging.Event{
		dmRoomID: {messageEvent(dmRoomID, customer, "my package is lost")},
	}))

	room, open := env.store.UserRoom(customer)
	if !open {
		t.Fatal("first contact did not open a ticket")
	}
	if room != ticketRoomID {
		t.Errorf("ticket room = %s", room)
	}
}

func TestInitialSyncRebuildsState(t *testing.T) {
	env := newTestEnv(t)
	env.openTicket(customer, ticketRoomID, ref.ServiceCode{})
	promoted := ref.MustParseUserID("@lead:local")

	initialResponse := &messaging.SyncResponse{
		NextBatch: "s-initial",
		Rooms: messaging.RoomsSection{
			Join: map[ref.RoomID]messaging.JoinedRoom{
				spaceID: {State: messaging.StateSection{Events: []messaging.Event{
					powerEvent(spaceID, map[string]any{promoted.String(): float64(80)}),
				}}},
				dmRoomID: {State: messaging.StateSection{Events: []messaging.Event{
					memberEvent(dmRoomID, serviceUser, serviceUser, "join", false),
					memberEvent(dmRoomID, customer, customer, "join", false),
				}}},
				// Tracked ticket rooms must not be mistaken for
				// direct conversations.
				ticketRoomID: {State: messaging.StateSection{Events: []messaging.Event{
					memberEvent(ticketRoomID, serviceUser, serviceUser, "join", false),
					memberEvent(ticketRoomID, customer, customer, "join", false),
				}}},
			},
		},
	}

	env.session.sync = func(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
		if options.Since != "" {
			t.Errorf("initial sync sent a since token %q", options.Since)
		}
		return initialResponse, nil
	}
	env.session.getStateEvent = func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
		if roomID != spaceID || eventType != "m.room.power_levels" {
			t.Errorf("unexpected state fetch: %s %s", roomID, eventType)
		}
		return json.RawMessage(`{"users": {"` + promoted.String() + `": 80}}`), nil
	}

	since, err := env.relay.initialSync(context.Background())
	if err != nil {
		t.Fatalf("initialSync: %v", err)
	}
	if since != "s-initial" {
		t.Errorf("since token = %q", since)
	}

	// The direct room map was rebuilt from membership.
	if got := env.relay.desk.Classify(messageEvent(dmRoomID, customer, "hello")); got.Class != desk.ClassUserMessage {
		t.Errorf("direct room not registered, classified as %s", got.Class)
	}

	// The ticket room kept its ticket classification.
	if got := env.relay.desk.Classify(messageEvent(ticketRoomID, staffUser, "On it")); got.Class != desk.ClassRoomMessage {
		t.Errorf("ticket room message classified as %s", got.Class)
	}

	// The power cache is warm: the promoted user's close reaction
	// counts immediately.
	reaction := messaging.Event{
		EventID: ref.MustParseEventID("$react-1"),
		Type:    "m.reaction",
		Sender:  promoted,
		RoomID:  ticketRoomID,
		Content: map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.annotation",
				"event_id": "$the-control",
				"key":      "🔒",
			},
		},
	}
	if got := env.relay.desk.Classify(reaction); got.Class != desk.ClassCloseRequest {
		t.Errorf("promoted close reaction classified as %s", got.Class)
	}
}
