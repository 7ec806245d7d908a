// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/desk"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/service"
	"github.com/bureau-foundation/frontdesk/lib/ticketstore"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// syncFilter restricts /sync to the event types the relay acts on:
// messages and reactions for routing, membership for space joins and
// direct-room detection, power levels for the staff check.
var syncFilter = buildSyncFilter()

func buildSyncFilter() string {
	eventTypes := []string{
		"m.room.message",
		"m.reaction",
		"m.room.member",
		"m.room.power_levels",
	}
	emptyTypes := []string{}

	filter := map[string]any{
		"room": map[string]any{
			"state": map[string]any{
				"types": []string{"m.room.member", "m.room.power_levels"},
			},
			"timeline": map[string]any{
				"types": eventTypes,
				"limit": 100,
			},
			"ephemeral": map[string]any{
				"types": emptyTypes,
			},
			"account_data": map[string]any{
				"types": emptyTypes,
			},
		},
		"presence": map[string]any{
			"types": emptyTypes,
		},
		"account_data": map[string]any{
			"types": emptyTypes,
		},
	}

	data, err := json.Marshal(filter)
	if err != nil {
		panic("building sync filter: " + err.Error())
	}
	return string(data)
}

// RelayService wires the desk to the homeserver: the /sync loop on
// one side, the admin socket on the other.
type RelayService struct {
	session     messaging.Session
	desk        *desk.Desk
	store       *ticketstore.Store
	space       ref.RoomID
	serviceUser ref.UserID
	clock       clock.Clock
	startedAt   time.Time
	logger      *slog.Logger
}

// initialSync performs the first /sync and rebuilds process-local
// state from current rooms: the direct-room map (lost on restart; the
// ticket map survives in the snapshot) and the space power cache.
// Returns the since token for the incremental loop.
func (rs *RelayService) initialSync(ctx context.Context) (string, error) {
	sinceToken, response, err := service.InitialSync(ctx, rs.session, syncFilter)
	if err != nil {
		return "", err
	}

	rs.logger.Info("initial sync complete",
		"joined_rooms", len(response.Rooms.Join),
		"pending_invites", len(response.Rooms.Invite),
	)

	// Invitations that arrived while the service was down: every
	// direct conversation starts with one.
	accepted := service.AcceptInvites(ctx, rs.session, response.Rooms.Invite, rs.logger)
	for _, roomID := range accepted {
		rs.detectDirectRoom(ctx, roomID)
	}

	directRooms := 0
	for roomID, room := range response.Rooms.Join {
		if roomID == rs.space {
			rs.applyPowerLevels(room.State.Events)
			rs.applyPowerLevels(room.Timeline.Events)
			continue
		}
		if _, tracked := rs.store.RoomUser(roomID); tracked {
			continue
		}
		if user, ok := directPartner(rs.serviceUser, room.State.Events); ok {
			rs.desk.RegisterDirectRoom(user, roomID)
			directRooms++
		}
	}

	// The power cache must be warm before the first staff check, and
	// the space's power event may predate the filtered window. Fetch
	// it directly.
	if err := rs.fetchSpacePower(ctx); err != nil {
		rs.logger.Warn("space power levels unavailable at startup", "error", err)
	}

	rs.logger.Info("relay state rebuilt", "direct_rooms", directRooms)
	return sinceToken, nil
}

// handleSync processes one incremental /sync response. Invites are
// accepted first so a brand-new direct room is registered before its
// first message arrives in a later batch; then every timeline event
// funnels through the desk.
func (rs *RelayService) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	for roomID, invite := range response.Rooms.Invite {
		inviter, direct := inviteIsDirect(rs.serviceUser, invite)
		if _, err := rs.session.JoinRoom(ctx, roomID); err != nil {
			rs.logger.Error("invite join failed",
				"room_id", roomID.String(),
				"error", err,
			)
			continue
		}
		rs.logger.Info("accepted room invite", "room_id", roomID.String(), "direct", direct)
		if direct {
			rs.desk.RegisterDirectRoom(inviter, roomID)
		} else {
			rs.detectDirectRoom(ctx, roomID)
		}
	}

	for roomID := range response.Rooms.Leave {
		if user, tracked := rs.store.RoomUser(roomID); tracked {
			// The mapping stays: the next relay attempt fails with
			// not-found and clears it with a user notice.
			rs.logger.Warn("removed from tracked ticket room",
				"room_id", roomID.String(),
				"user", user.String(),
			)
		}
	}

	for roomID, room := range response.Rooms.Join {
		if roomID == rs.space {
			rs.applyPowerLevels(room.State.Events)
			rs.applyPowerLevels(room.Timeline.Events)
		}
		for _, event := range room.Timeline.Events {
			event.RoomID = roomID
			rs.desk.HandleEvent(ctx, event)
		}
	}
}

// applyPowerLevels feeds every power-levels event from the tenant
// space into the desk's staff cache.
func (rs *RelayService) applyPowerLevels(events []messaging.Event) {
	for _, event := range events {
		if event.Type != "m.room.power_levels" {
			continue
		}
		rs.desk.UpdateSpacePower(powerLevelUsers(event.Content))
	}
}

// fetchSpacePower reads the space's current power levels directly.
func (rs *RelayService) fetchSpacePower(ctx context.Context) error {
	raw, err := rs.session.GetStateEvent(ctx, rs.space, "m.room.power_levels", "")
	if err != nil {
		return err
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return err
	}
	rs.desk.UpdateSpacePower(powerLevelUsers(content))
	return nil
}

// powerLevelUsers extracts the users map from m.room.power_levels
// content. Entries that fail to parse are dropped.
func powerLevelUsers(content map[string]any) map[ref.UserID]int {
	users, _ := content["users"].(map[string]any)
	levels := make(map[ref.UserID]int, len(users))
	for raw, value := range users {
		user, err := ref.ParseUserID(raw)
		if err != nil {
			continue
		}
		level, ok := value.(float64)
		if !ok {
			continue
		}
		levels[user] = int(level)
	}
	return levels
}

// inviteIsDirect reports whether an invite is a direct conversation:
// the service's own stripped membership event carries is_direct. The
// inviter is that event's sender.
func inviteIsDirect(serviceUser ref.UserID, invite messaging.InvitedRoom) (ref.UserID, bool) {
	for _, event := range invite.InviteState.Events {
		if event.Type != "m.room.member" || event.StateKey == nil {
			continue
		}
		if *event.StateKey != serviceUser.String() {
			continue
		}
		if direct, _ := event.Content["is_direct"].(bool); direct {
			return event.Sender, true
		}
	}
	return ref.UserID{}, false
}

// detectDirectRoom registers a freshly joined room as a direct
// conversation when its membership says so: exactly two members, one
// of them the service. Covers clients that omit the is_direct flag.
func (rs *RelayService) detectDirectRoom(ctx context.Context, roomID ref.RoomID) {
	if _, tracked := rs.store.RoomUser(roomID); tracked {
		return
	}
	members, err := rs.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		rs.logger.Warn("cannot inspect joined room membership",
			"room_id", roomID.String(),
			"error", err,
		)
		return
	}
	var partner ref.UserID
	count := 0
	for _, member := range members {
		if member.Membership != "join" && member.Membership != "invite" {
			continue
		}
		count++
		if member.UserID != rs.serviceUser {
			partner = member.UserID
		}
	}
	if count == 2 && !partner.IsZero() {
		rs.desk.RegisterDirectRoom(partner, roomID)
	}
}

// directPartner finds the other member of a two-person room from its
// state events. Used during initial sync, where full room state is
// available without extra round trips.
func directPartner(serviceUser ref.UserID, stateEvents []messaging.Event) (ref.UserID, bool) {
	var partner ref.UserID
	count := 0
	for _, event := range stateEvents {
		if event.Type != "m.room.member" || event.StateKey == nil {
			continue
		}
		membership, _ := event.Content["membership"].(string)
		if membership != "join" && membership != "invite" {
			continue
		}
		count++
		member, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			continue
		}
		if member != serviceUser {
			partner = member
		}
	}
	if count == 2 && !partner.IsZero() {
		return partner, true
	}
	return ref.UserID{}, false
}
