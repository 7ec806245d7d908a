// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision creates and maintains the rooms the support desk
// operates in: the tenant space, the staff log room under it, and the
// per-ticket rooms created on demand.
//
// Aliased rooms (the space, the log room) are resolved first and only
// created when the alias is unbound, so startup is idempotent and a
// space deleted out from under a running service is recreated on the
// next ticket rather than wedging intake. Ticket rooms have no alias:
// the ticket store is the authority for finding them, and a generated
// name with a random suffix avoids collisions without one.
package provision

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// ErrForbidden marks a provisioning failure caused by the homeserver
// denying the operation (M_FORBIDDEN). The desk converts it into a
// user-visible decline instead of retrying: the service's power levels
// are an operator problem, not a transient one.
var ErrForbidden = errors.New("homeserver denied provisioning")

// Config carries the identifiers and policy knobs provisioning needs.
// All refs are parsed and validated by the caller.
type Config struct {
	// ServerName is the service's own homeserver, used as the routing
	// hint (via) in space parent/child links.
	ServerName ref.ServerName

	// SpaceAlias and SpaceName identify the tenant space.
	SpaceAlias ref.RoomAlias
	SpaceName  string

	// LogRoomAlias and LogRoomName identify the staff log room.
	LogRoomAlias ref.RoomAlias
	LogRoomName  string

	// TicketPrefix is the first segment of generated ticket room names.
	TicketPrefix string

	// Staff are invited to every ticket room and to the log room.
	Staff []ref.UserID

	// StaffLevel is the power level granted to staff in ticket rooms;
	// it is also the level required for state changes, redaction, and
	// membership control there.
	StaffLevel int
}

// Provisioner creates rooms on behalf of the service account.
type Provisioner struct {
	session messaging.Session
	config  Config
	logger  *slog.Logger
}

// New returns a Provisioner using the given authenticated session.
func New(session messaging.Session, config Config, logger *slog.Logger) *Provisioner {
	return &Provisioner{session: session, config: config, logger: logger}
}

// EnsureSpace resolves the tenant space alias, creating the space if
// the alias is unbound. Safe to call repeatedly; callers that hold a
// cached room ID should still call it before provisioning so a space
// deleted mid-run is recreated instead of failing every ticket.
func (p *Provisioner) EnsureSpace(ctx context.Context) (ref.RoomID, error) {
	roomID, err := p.session.ResolveAlias(ctx, p.config.SpaceAlias)
	if err == nil {
		return roomID, nil
	}
	if !messaging.IsNotFound(err) {
		return ref.RoomID{}, fmt.Errorf("resolving space alias %s: %w", p.config.SpaceAlias, err)
	}

	p.logger.Info("creating tenant space", "alias", p.config.SpaceAlias.String())
	response, err := p.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:       p.config.SpaceName,
		Alias:      p.config.SpaceAlias.Localpart(),
		Preset:     "private_chat",
		Visibility: "private",
		CreationContent: map[string]any{
			"type": "m.space",
		},
	})
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeRoomInUse) {
			// Race: another process bound the alias between our
			// resolve and create. Theirs wins.
			roomID, err = p.session.ResolveAlias(ctx, p.config.SpaceAlias)
			if err != nil {
				return ref.RoomID{}, fmt.Errorf("space alias %s taken but unresolvable: %w", p.config.SpaceAlias, err)
			}
			return roomID, nil
		}
		if messaging.IsForbidden(err) {
			err = errors.Join(ErrForbidden, err)
		}
		return ref.RoomID{}, fmt.Errorf("creating tenant space: %w", err)
	}
	return response.RoomID, nil
}

// EnsureLogRoom resolves the staff log room alias, creating the room
// under the given space if the alias is unbound. Staff are invited on
// creation; members who already left are not re-invited.
func (p *Provisioner) EnsureLogRoom(ctx context.Context, space ref.RoomID) (ref.RoomID, error) {
	roomID, err := p.session.ResolveAlias(ctx, p.config.LogRoomAlias)
	if err == nil {
		return roomID, nil
	}
	if !messaging.IsNotFound(err) {
		return ref.RoomID{}, fmt.Errorf("resolving log room alias %s: %w", p.config.LogRoomAlias, err)
	}

	p.logger.Info("creating staff log room", "alias", p.config.LogRoomAlias.String())
	invites := make([]string, 0, len(p.config.Staff))
	for _, staff := range p.config.Staff {
		invites = append(invites, staff.String())
	}

	response, err := p.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:       p.config.LogRoomName,
		Alias:      p.config.LogRoomAlias.Localpart(),
		Preset:     "private_chat",
		Visibility: "private",
		Invite:     invites,
		InitialState: []messaging.StateEvent{
			spaceParentEvent(space, p.config.ServerName),
		},
	})
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeRoomInUse) {
			roomID, err = p.session.ResolveAlias(ctx, p.config.LogRoomAlias)
			if err != nil {
				return ref.RoomID{}, fmt.Errorf("log room alias %s taken but unresolvable: %w", p.config.LogRoomAlias, err)
			}
			return roomID, nil
		}
		if messaging.IsForbidden(err) {
			err = errors.Join(ErrForbidden, err)
		}
		return ref.RoomID{}, fmt.Errorf("creating staff log room: %w", err)
	}

	p.linkChild(ctx, space, response.RoomID)
	return response.RoomID, nil
}

// CreateTicketRoom creates an invite-only room for one user's ticket
// and invites the user and all staff. The room name is
// "{prefix}-{user}-{suffix}" where user is the sanitized localpart and
// suffix is random, so repeat tickets from the same user get distinct
// names. The space is re-ensured on every call.
func (p *Provisioner) CreateTicketRoom(ctx context.Context, user ref.UserID, label ref.ServiceCode) (ref.RoomID, error) {
	space, err := p.EnsureSpace(ctx)
	if err != nil {
		return ref.RoomID{}, err
	}

	suffix, err := randomSuffix()
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("generating room name suffix: %w", err)
	}
	name := p.config.TicketPrefix + "-" + sanitizeLocalpart(user.Localpart()) + "-" + suffix

	topic := "Support ticket for " + user.String()
	if !label.IsZero() {
		topic += " (" + label.String() + ")"
	}

	invites := make([]string, 0, len(p.config.Staff)+1)
	invites = append(invites, user.String())
	for _, staff := range p.config.Staff {
		// A staff member opening their own ticket is already invited.
		if staff == user {
			continue
		}
		invites = append(invites, staff.String())
	}

	response, err := p.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:       name,
		Topic:      topic,
		Preset:     "private_chat",
		Visibility: "private",
		Invite:     invites,
		InitialState: []messaging.StateEvent{
			{Type: "m.room.join_rules", Content: map[string]any{"join_rule": "invite"}},
			{Type: "m.room.history_visibility", Content: map[string]any{"history_visibility": "invited"}},
			spaceParentEvent(space, p.config.ServerName),
		},
		PowerLevelContentOverride: p.ticketPowerLevels(user),
	})
	if err != nil {
		if messaging.IsForbidden(err) {
			err = errors.Join(ErrForbidden, err)
		}
		return ref.RoomID{}, fmt.Errorf("creating ticket room for %s: %w", user, err)
	}

	p.logger.Info("created ticket room",
		"room_id", response.RoomID.String(),
		"name", name,
		"user", user.String(),
	)
	p.linkChild(ctx, space, response.RoomID)
	return response.RoomID, nil
}

// linkChild records a room as a child of the space. Best-effort: the
// room is already functional and its members invited, so a failed
// hierarchy link is not worth failing the ticket over.
func (p *Provisioner) linkChild(ctx context.Context, space, room ref.RoomID) {
	_, err := p.session.SendStateEvent(ctx, space, "m.space.child", room.String(),
		map[string]any{
			"via": []string{p.config.ServerName.String()},
		})
	if err != nil {
		p.logger.Warn("linking room into space failed",
			"room_id", room.String(),
			"space", space.String(),
			"error", err,
		)
	}
}

// spaceParentEvent builds the m.space.parent state event placed in
// initial_state at room creation.
func spaceParentEvent(space ref.RoomID, server ref.ServerName) messaging.StateEvent {
	return messaging.StateEvent{
		Type:     "m.space.parent",
		StateKey: space.String(),
		Content: map[string]any{
			"via":       []string{server.String()},
			"canonical": true,
		},
	}
}

// ticketPowerLevels returns the power level override for a new ticket
// room: the service at 100, staff at the configured level, the ticket
// owner and everyone else at 0. State changes, redaction, and
// membership control require the staff level, so the owner can talk
// but not rename the room, prune history, or bring in others. A staff
// member opening their own ticket keeps staff power.
func (p *Provisioner) ticketPowerLevels(user ref.UserID) map[string]any {
	users := map[string]any{
		user.String(): 0,
	}
	for _, staff := range p.config.Staff {
		users[staff.String()] = p.config.StaffLevel
	}
	users[p.session.UserID().String()] = 100

	return map[string]any{
		"users":          users,
		"users_default":  0,
		"events_default": 0,
		"state_default":  p.config.StaffLevel,
		"invite":         p.config.StaffLevel,
		"kick":           p.config.StaffLevel,
		"ban":            p.config.StaffLevel,
		"redact":         p.config.StaffLevel,
	}
}

// sanitizeLocalpart folds a Matrix localpart into the room-name
// charset: lowercased, anything outside [a-z0-9-] replaced with '-',
// truncated to 20 characters. Purely cosmetic; the store maps rooms to
// users, never the name.
func sanitizeLocalpart(localpart string) string {
	lowered := strings.ToLower(localpart)
	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, character := range lowered {
		switch {
		case character >= 'a' && character <= 'z',
			character >= '0' && character <= '9',
			character == '-':
			builder.WriteRune(character)
		default:
			builder.WriteByte('-')
		}
	}
	sanitized := builder.String()
	if len(sanitized) > 20 {
		sanitized = sanitized[:20]
	}
	return sanitized
}

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomSuffix returns 6 random base36 characters from crypto/rand.
// The slight modulo bias is irrelevant for a display-name suffix.
func randomSuffix() (string, error) {
	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	suffix := make([]byte, len(raw))
	for index, b := range raw {
		suffix[index] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(suffix), nil
}
