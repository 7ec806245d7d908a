// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/frontdesk/lib/archive"
	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/msgfmt"
	"github.com/bureau-foundation/frontdesk/lib/provision"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/ticketstore"
	"github.com/bureau-foundation/frontdesk/lib/transcript"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// OrderIntake is the guided-intake surface the desk consults. The
// intake package implements it; the desk only needs to know whether a
// user's direct-room messages belong to a running flow and how to
// start one.
type OrderIntake interface {
	// Active reports whether an intake flow is currently collecting
	// replies from the user. Active users' direct-room messages are
	// not relayed.
	Active(user ref.UserID) bool

	// Start launches an intake flow for the user in their direct room.
	// An empty code presents the service menu first. Start returns
	// immediately; the flow runs in its own goroutine.
	Start(ctx context.Context, user ref.UserID, room ref.RoomID, code string)
}

// Config carries the desk's policy: which rooms are special and who
// counts as staff.
type Config struct {
	// Space is the tenant space. Joins here trigger welcome messages,
	// and power levels here feed the staff check.
	Space ref.RoomID

	// LogRoom receives closure entries and lifecycle notices. Zero
	// disables staff logging.
	LogRoom ref.RoomID

	// Staff always count as staff regardless of space power.
	Staff []ref.UserID

	// StaffLevel is the space power level at or above which a user
	// counts as staff.
	StaffLevel int

	// Welcome is the markdown body of the direct message sent when a
	// user joins the tenant space. Empty uses a built-in default.
	Welcome string
}

// Options collects the desk's collaborators. Session, Store,
// Provisioner, Transcripts, Clock, and Logger are required. Archive
// (transcript archiving), Purger (homeserver-level room deletion), and
// the intake registered later via SetIntake are optional; the desk
// degrades gracefully without them.
type Options struct {
	Session     messaging.Session
	Store       *ticketstore.Store
	Provisioner *provision.Provisioner
	Transcripts *transcript.Generator
	Archive     *archive.Archive
	Purger      messaging.RoomPurger
	Config      Config
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Desk routes messages between direct rooms and ticket rooms and
// drives the ticket lifecycle. All mutable state is mutex-guarded; the
// sync loop, intake flows, and socket handlers all funnel through the
// same methods.
type Desk struct {
	session     messaging.Session
	store       *ticketstore.Store
	provisioner *provision.Provisioner
	transcripts *transcript.Generator
	archive     *archive.Archive
	purger      messaging.RoomPurger
	config      Config
	clock       clock.Clock
	logger      *slog.Logger

	mu           sync.Mutex
	intake       OrderIntake
	directRooms  map[ref.UserID]ref.RoomID // outbound: latest direct room per user
	directUsers  map[ref.RoomID]ref.UserID // inbound: every registered direct room
	spacePower   map[ref.UserID]int
	welcomed     map[ref.UserID]struct{}
	displayNames map[ref.UserID]string

	// closing is the close coordinator's guard set. Its own mutex so a
	// slow close never blocks classification.
	closingMu sync.Mutex
	closing   map[ref.RoomID]struct{}
}

// New builds a Desk from its collaborators.
func New(options Options) *Desk {
	return &Desk{
		session:      options.Session,
		store:        options.Store,
		provisioner:  options.Provisioner,
		transcripts:  options.Transcripts,
		archive:      options.Archive,
		purger:       options.Purger,
		config:       options.Config,
		clock:        options.Clock,
		logger:       options.Logger,
		directRooms:  make(map[ref.UserID]ref.RoomID),
		directUsers:  make(map[ref.RoomID]ref.UserID),
		spacePower:   make(map[ref.UserID]int),
		welcomed:     make(map[ref.UserID]struct{}),
		displayNames: make(map[ref.UserID]string),
		closing:      make(map[ref.RoomID]struct{}),
	}
}

// SetIntake wires the guided-intake manager. Separate from New because
// the intake needs the desk (to create tickets on completion) and the
// desk needs the intake (to route active users' messages): main builds
// both, then connects them.
func (d *Desk) SetIntake(intake OrderIntake) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intake = intake
}

// HandleEvent classifies one timeline event and dispatches it. It
// never returns an error: every failure is handled where it occurs,
// as a log line, a user-visible notice, or both.
func (d *Desk) HandleEvent(ctx context.Context, event messaging.Event) {
	classified := d.Classify(event)
	if classified.Class == ClassIgnore {
		return
	}

	d.logger.Debug("event classified",
		"class", classified.Class.String(),
		"room_id", classified.Room.String(),
		"sender", event.Sender.String(),
	)

	switch classified.Class {
	case ClassUserMessage:
		d.relayUserMessage(ctx, classified)
	case ClassRoomMessage:
		d.relayRoomMessage(ctx, classified)
	case ClassOrderCommand:
		d.startOrder(ctx, classified)
	case ClassCloseRequest:
		d.handleCloseRequest(ctx, classified)
	case ClassSpaceJoin:
		d.WelcomeUser(ctx, classified.User)
	}
}

// CreateTicket provisions a ticket room for the user and records the
// mapping. Returns the new room, or the existing room together with a
// *TicketExistsError when the user already has one open.
//
// After the mapping is recorded, the room receives the intake details
// (when given) and the pinned close control, and the user receives a
// direct-message confirmation naming the room. Those postings are
// best-effort: the ticket exists once the store accepts it.
func (d *Desk) CreateTicket(ctx context.Context, user ref.UserID, label ref.ServiceCode, details string) (ref.RoomID, error) {
	if existing, open := d.store.UserRoom(user); open {
		return existing, &TicketExistsError{User: user, Room: existing}
	}

	room, err := d.provisioner.CreateTicketRoom(ctx, user, label)
	if err != nil {
		return ref.RoomID{}, opError("create-ticket", kindOf(err), err)
	}

	if err := d.store.Put(user, room, label); err != nil {
		// Lost a race: another event opened a ticket for this user
		// between our check and insert. The stored mapping wins; the
		// room we just made is an orphan and gets retired.
		existing, _ := d.store.UserRoom(user)
		d.logger.Warn("ticket creation raced, retiring orphan room",
			"user", user.String(),
			"orphan", room.String(),
			"existing", existing.String(),
		)
		if err := d.retireRoom(ctx, room); err != nil {
			d.logger.Warn("retiring orphan room failed",
				"room_id", room.String(),
				"error", err,
			)
		}
		return existing, &TicketExistsError{User: user, Room: existing}
	}

	if details != "" {
		d.sendHTMLNotice(ctx, room, details)
	}
	d.postCloseControl(ctx, room)
	d.confirmTicket(ctx, user, room)

	return room, nil
}

// postCloseControl posts the close instructions into a new ticket room
// and pins them, giving staff a persistent control that survives
// scrollback. Pinning requires state power the service always grants
// itself; a failed pin still leaves the instructions in the timeline.
func (d *Desk) postCloseControl(ctx context.Context, room ref.RoomID) {
	eventID, err := d.session.SendMessage(ctx, room, messaging.NewNotice(
		"Staff: close this ticket with \"!close [reason]\" or react "+closeEmoji+" to this message. "+
			"A transcript is generated and the room is removed."))
	if err != nil {
		d.logger.Warn("posting close control failed",
			"room_id", room.String(),
			"error", err,
		)
		return
	}
	_, err = d.session.SendStateEvent(ctx, room, "m.room.pinned_events", "",
		map[string]any{"pinned": []string{eventID.String()}})
	if err != nil {
		d.logger.Warn("pinning close control failed",
			"room_id", room.String(),
			"error", err,
		)
	}
}

// confirmTicket tells the user their ticket room exists. This is the
// terminal acknowledgment of a ticket-opening action.
func (d *Desk) confirmTicket(ctx context.Context, user ref.UserID, room ref.RoomID) {
	dm, err := d.DirectRoom(ctx, user)
	if err != nil {
		d.logger.Warn("ticket confirmation undeliverable",
			"user", user.String(),
			"error", err,
		)
		return
	}
	d.notice(ctx, dm, fmt.Sprintf(
		"Your ticket is open. Staff will reply here; you have also been invited to the ticket room %s.",
		room))
}

// DirectRoom returns the user's direct room, creating one when none is
// registered. Created rooms are marked is_direct so clients file them
// under people rather than rooms.
func (d *Desk) DirectRoom(ctx context.Context, user ref.UserID) (ref.RoomID, error) {
	d.mu.Lock()
	room, ok := d.directRooms[user]
	d.mu.Unlock()
	if ok {
		return room, nil
	}

	response, err := d.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Preset:     "trusted_private_chat",
		Visibility: "private",
		IsDirect:   true,
		Invite:     []string{user.String()},
	})
	if err != nil {
		return ref.RoomID{}, opError("direct-room", kindOf(err), err)
	}

	d.logger.Info("created direct room",
		"user", user.String(),
		"room_id", response.RoomID.String(),
	)
	d.RegisterDirectRoom(user, response.RoomID)
	return response.RoomID, nil
}

// RegisterDirectRoom records a direct room for a user. The sync loop
// calls this for accepted is_direct invites and for rediscovered
// one-to-one rooms after a restart. A user can have several direct
// rooms registered for inbound classification; outbound messages go to
// the most recently registered one.
func (d *Desk) RegisterDirectRoom(user ref.UserID, room ref.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.directRooms[user] = room
	d.directUsers[room] = user
}

// unregisterDirectRoom drops a direct room whose delivery failed with
// not-found: the room is gone and a fresh one will be created on the
// next outbound message.
func (d *Desk) unregisterDirectRoom(room ref.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.directUsers[room]
	delete(d.directUsers, room)
	if ok && d.directRooms[user] == room {
		delete(d.directRooms, user)
	}
}

// directRoomOwner reports which user a registered direct room belongs to.
func (d *Desk) directRoomOwner(room ref.RoomID) (ref.UserID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.directUsers[room]
	return user, ok
}

// intakeActive reports whether an intake flow currently owns the
// user's direct-room messages.
func (d *Desk) intakeActive(user ref.UserID) bool {
	d.mu.Lock()
	intake := d.intake
	d.mu.Unlock()
	return intake != nil && intake.Active(user)
}

// UpdateSpacePower replaces the cached space power levels. The sync
// loop calls it with the users map of every m.room.power_levels event
// observed in the tenant space.
func (d *Desk) UpdateSpacePower(levels map[ref.UserID]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spacePower = levels
}

// isStaff reports whether the user may close tickets: either on the
// configured staff list, or explicitly granted space power at or above
// the staff level. Users absent from the space power map never qualify
// by power, even when the threshold is zero.
func (d *Desk) isStaff(user ref.UserID) bool {
	for _, staff := range d.config.Staff {
		if staff == user {
			return true
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	level, listed := d.spacePower[user]
	return listed && level >= d.config.StaffLevel
}

// defaultWelcome is the direct message sent to users joining the
// tenant space when no welcome text is configured.
const defaultWelcome = "Welcome! Message me here and I will open a support ticket for you. " +
	"To order a service, send `!order` and I will walk you through it."

// WelcomeUser sends the welcome direct message to a user who joined
// the tenant space, at most once per process run. Best-effort: a user
// who rejects the direct room just doesn't get a welcome.
func (d *Desk) WelcomeUser(ctx context.Context, user ref.UserID) {
	d.mu.Lock()
	if _, done := d.welcomed[user]; done {
		d.mu.Unlock()
		return
	}
	d.welcomed[user] = struct{}{}
	d.mu.Unlock()

	dm, err := d.DirectRoom(ctx, user)
	if err != nil {
		d.logger.Warn("welcome undeliverable",
			"user", user.String(),
			"error", err,
		)
		return
	}

	welcome := d.config.Welcome
	if welcome == "" {
		welcome = defaultWelcome
	}
	d.sendHTMLNotice(ctx, dm, welcome)
}

// startOrder hands an order command to the intake manager, or declines
// when ordering is not configured.
func (d *Desk) startOrder(ctx context.Context, classified Classified) {
	d.mu.Lock()
	intake := d.intake
	d.mu.Unlock()

	if intake == nil {
		d.notice(ctx, classified.Room, "Ordering is not available on this desk. Describe what you need and staff will help.")
		return
	}
	intake.Start(ctx, classified.User, classified.Room, classified.Code)
}

// PostStaffLog posts a markdown-formatted entry to the staff log room.
// Closure records and lifecycle notices land here. Best-effort; no-op
// when no log room is configured.
func (d *Desk) PostStaffLog(ctx context.Context, markdown string) {
	if d.config.LogRoom.IsZero() {
		return
	}
	d.sendHTMLNotice(ctx, d.config.LogRoom, markdown)
}

// displayNameFor resolves a user's display name for relay attribution,
// caching positive results. Lookup failures fall back to the raw user
// ID and are not cached, so a transient profile error heals itself.
func (d *Desk) displayNameFor(ctx context.Context, user ref.UserID) string {
	d.mu.Lock()
	name, ok := d.displayNames[user]
	d.mu.Unlock()
	if ok {
		return name
	}

	name, err := d.session.GetDisplayName(ctx, user)
	if err != nil || name == "" {
		return user.String()
	}

	d.mu.Lock()
	d.displayNames[user] = name
	d.mu.Unlock()
	return name
}

// notice sends a best-effort plain notice, logging delivery failures.
func (d *Desk) notice(ctx context.Context, room ref.RoomID, body string) {
	if _, err := d.session.SendMessage(ctx, room, messaging.NewNotice(body)); err != nil {
		d.logger.Warn("notice undeliverable",
			"room_id", room.String(),
			"error", err,
		)
	}
}

// sendHTMLNotice renders markdown and sends it as a formatted notice,
// with the markdown source as the plain-text fallback body.
func (d *Desk) sendHTMLNotice(ctx context.Context, room ref.RoomID, markdown string) {
	content := messaging.NewHTMLNotice(markdown, msgfmt.Render(markdown))
	if _, err := d.session.SendMessage(ctx, room, content); err != nil {
		d.logger.Warn("notice undeliverable",
			"room_id", room.String(),
			"error", err,
		)
	}
}

// react annotates an event with a reaction, the lightweight delivery
// acknowledgment for relayed messages. Best-effort.
func (d *Desk) react(ctx context.Context, room ref.RoomID, target ref.EventID, key string) {
	if target.IsZero() {
		return
	}
	_, err := d.session.SendEvent(ctx, room, "m.reaction", messaging.NewReaction(target, key))
	if err != nil {
		d.logger.Debug("reaction failed",
			"room_id", room.String(),
			"target", target.String(),
			"error", err,
		)
	}
}
