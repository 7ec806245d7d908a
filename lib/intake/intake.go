// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package intake runs guided order flows in users' direct rooms.
//
// A flow is started by the !order command: the service presents the
// catalog (or jumps straight to a named service), asks the service's
// prompts one at a time, and waits for each reply on its own /sync
// watcher with a bounded clock-driven timeout. A completed flow opens
// a ticket through the desk with the service label and the collected
// answers; a timed-out flow leaves a single abandonment notice and no
// ticket.
//
// While a flow is active the desk's classifier hands the user's
// direct-room messages to the flow's watcher instead of the relay, so
// answers never leak into a ticket room.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/catalog"
	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/desk"
	"github.com/bureau-foundation/frontdesk/lib/msgfmt"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/ticketstore"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// menuReplyTimeout bounds how long the flow waits for a service code
// after presenting the menu. Prompts carry their own timeouts from the
// catalog.
const menuReplyTimeout = 3 * time.Minute

// errReplyTimeout marks a reply wait that expired. Internal: flows
// convert it into the abandonment notice.
var errReplyTimeout = errors.New("reply wait timed out")

// TicketCreator is the slice of the desk the intake calls on flow
// completion. *desk.Desk implements it.
type TicketCreator interface {
	CreateTicket(ctx context.Context, user ref.UserID, label ref.ServiceCode, details string) (ref.RoomID, error)
}

// Options collects the manager's collaborators. All fields are
// required.
type Options struct {
	Session messaging.Session
	Catalog *catalog.Catalog
	Store   *ticketstore.Store
	Tickets TicketCreator
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Manager owns the active order flows, at most one per user.
type Manager struct {
	session messaging.Session
	catalog *catalog.Catalog
	store   *ticketstore.Store
	tickets TicketCreator
	clock   clock.Clock
	logger  *slog.Logger

	mu     sync.Mutex
	active map[ref.UserID]struct{}
}

// New builds a Manager from its collaborators.
func New(options Options) *Manager {
	return &Manager{
		session: options.Session,
		catalog: options.Catalog,
		store:   options.Store,
		tickets: options.Tickets,
		clock:   options.Clock,
		logger:  options.Logger,
		active:  make(map[ref.UserID]struct{}),
	}
}

// Active reports whether a flow is currently collecting replies from
// the user.
func (m *Manager) Active(user ref.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[user]
	return running
}

// Start launches an order flow for the user in their direct room and
// returns immediately. An empty code presents the service menu first.
// The flow runs until completion, timeout, or ctx cancellation.
func (m *Manager) Start(ctx context.Context, user ref.UserID, room ref.RoomID, code string) {
	m.mu.Lock()
	if _, running := m.active[user]; running {
		m.mu.Unlock()
		// Unreachable through classification (active users' commands
		// feed the flow), so a second start is a caller bug.
		m.logger.Warn("order flow already running", "user", user.String())
		return
	}
	m.active[user] = struct{}{}
	m.mu.Unlock()

	go m.run(ctx, user, room, code)
}

// run is the flow goroutine: resolve the service, walk its prompts,
// open the ticket. Every exit path has acknowledged the user by the
// time it returns.
func (m *Manager) run(ctx context.Context, user ref.UserID, room ref.RoomID, code string) {
	defer m.finish(user)

	logger := m.logger.With("user", user.String(), "room_id", room.String())

	if existing, open := m.store.UserRoom(user); open {
		m.notice(ctx, room, fmt.Sprintf(
			"You already have an open ticket (%s). Close it before placing a new order.", existing))
		return
	}

	// Checkpoint the sync stream before any prompt goes out, so a
	// fast reply can never slip past the watcher.
	watcher, err := messaging.WatchRoom(ctx, m.session, room, &messaging.SyncFilter{
		TimelineTypes: []string{"m.room.message"},
		ExcludeState:  true,
	})
	if err != nil {
		logger.Error("order flow watcher failed", "error", err)
		m.notice(ctx, room, "Sorry — ordering is unavailable right now. Please try again.")
		return
	}

	service, ok := m.resolveService(ctx, room, watcher, user, code)
	if !ok {
		return
	}
	logger = logger.With("service", service.Code)
	logger.Info("order flow started")

	answers, ok := m.collectAnswers(ctx, room, watcher, user, service)
	if !ok {
		return
	}

	label, err := ref.ParseServiceCode(service.Code)
	if err != nil {
		// Validation at catalog load should make this unreachable.
		logger.Error("catalog service code unusable", "error", err)
		m.notice(ctx, room, "Sorry — this service is misconfigured. Please contact staff.")
		return
	}

	ticket, err := m.tickets.CreateTicket(ctx, user, label, renderDetails(service, answers))
	if err != nil {
		var exists *desk.TicketExistsError
		if errors.As(err, &exists) {
			m.notice(ctx, room, fmt.Sprintf(
				"You already have an open ticket (%s); the order was not filed. Close it and order again.", exists.Room))
			return
		}
		logger.Error("order ticket creation failed", "error", err)
		m.notice(ctx, room, "Sorry — your order could not be filed. Please try again.")
		return
	}
	logger.Info("order completed", "ticket", ticket.String())
}

func (m *Manager) finish(user ref.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, user)
}

// resolveService turns the command argument (or a menu reply) into a
// catalog service. A false return means the flow is over and the user
// has been told why.
func (m *Manager) resolveService(ctx context.Context, room ref.RoomID, watcher *messaging.RoomWatcher, user ref.UserID, code string) (catalog.Service, bool) {
	if code != "" {
		service, found := m.catalog.ByCode(code)
		if !found {
			m.notice(ctx, room, fmt.Sprintf("Unknown service %q. Send !order to see the menu.", code))
			return catalog.Service{}, false
		}
		return service, true
	}

	m.sendMenu(ctx, room)
	reply, err := m.awaitReply(ctx, watcher, user, menuReplyTimeout)
	if err != nil {
		m.abandon(ctx, room, err)
		return catalog.Service{}, false
	}
	choice := strings.TrimSpace(contentBody(reply))
	service, found := m.catalog.ByCode(choice)
	if !found {
		m.notice(ctx, room, fmt.Sprintf("%q is not in the menu. Send !order to start over.", choice))
		return catalog.Service{}, false
	}
	return service, true
}

// collectAnswers walks the service's prompts in order. A false return
// means the flow is over and the user has been told why.
func (m *Manager) collectAnswers(ctx context.Context, room ref.RoomID, watcher *messaging.RoomWatcher, user ref.UserID, service catalog.Service) ([]answer, bool) {
	answers := make([]answer, 0, len(service.Prompts))
	for _, prompt := range service.Prompts {
		m.notice(ctx, room, prompt.Question)
		reply, err := m.awaitReply(ctx, watcher, user, prompt.Timeout())
		if err != nil {
			m.abandon(ctx, room, err)
			return nil, false
		}
		answers = append(answers, answer{key: prompt.Key, text: strings.TrimSpace(contentBody(reply))})
	}
	return answers, true
}

// awaitReply blocks until the user's next message, the timeout, or ctx
// cancellation. The timeout races the injected clock against the
// watcher, so tests drive it with a fake clock instead of sleeping.
func (m *Manager) awaitReply(ctx context.Context, watcher *messaging.RoomWatcher, user ref.UserID, timeout time.Duration) (messaging.Event, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		event messaging.Event
		err   error
	}
	outcomes := make(chan outcome, 1)
	go func() {
		event, err := watcher.WaitForMessage(waitCtx, user)
		outcomes <- outcome{event: event, err: err}
	}()

	select {
	case result := <-outcomes:
		return result.event, result.err
	case <-m.clock.After(timeout):
	case <-ctx.Done():
	}

	// Unwind the watcher before reporting, so the flow never touches
	// it from two goroutines.
	cancel()
	<-outcomes
	if ctx.Err() != nil {
		return messaging.Event{}, ctx.Err()
	}
	return messaging.Event{}, errReplyTimeout
}

// abandon ends a flow that did not complete. A timeout gets exactly
// one user-visible notice; shutdown is silent; anything else is a
// platform failure reported generically.
func (m *Manager) abandon(ctx context.Context, room ref.RoomID, err error) {
	switch {
	case errors.Is(err, errReplyTimeout):
		m.notice(ctx, room, "No reply in time — order cancelled. Send !order to start over.")
	case ctx.Err() != nil:
		m.logger.Info("order flow cancelled by shutdown", "room_id", room.String())
	default:
		m.logger.Error("order flow failed", "room_id", room.String(), "error", err)
		m.notice(ctx, room, "Sorry — something went wrong with your order. Please send !order to try again.")
	}
}

// sendMenu posts the orderable services as a markdown list.
func (m *Manager) sendMenu(ctx context.Context, room ref.RoomID) {
	var builder strings.Builder
	builder.WriteString("**Orderable services** — reply with a code to begin:\n")
	for _, service := range m.catalog.Services {
		fmt.Fprintf(&builder, "\n- `%s` — **%s**", service.Code, service.Name)
		if service.Blurb != "" {
			builder.WriteString(": ")
			builder.WriteString(service.Blurb)
		}
	}
	m.sendHTMLNotice(ctx, room, builder.String())
}

// answer pairs a prompt key with the user's reply text.
type answer struct {
	key  string
	text string
}

// renderDetails builds the markdown order summary posted into the new
// ticket room.
func renderDetails(service catalog.Service, answers []answer) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "**Order: %s** (`%s`)", service.Name, service.Code)
	if len(answers) > 0 {
		builder.WriteString("\n")
	}
	for _, entry := range answers {
		fmt.Fprintf(&builder, "\n- **%s**: %s", entry.key, entry.text)
	}
	return builder.String()
}

func contentBody(event messaging.Event) string {
	body, _ := event.Content["body"].(string)
	return body
}

func (m *Manager) notice(ctx context.Context, room ref.RoomID, body string) {
	if _, err := m.session.SendMessage(ctx, room, messaging.NewNotice(body)); err != nil {
		m.logger.Warn("notice undeliverable",
			"room_id", room.String(),
			"error", err,
		)
	}
}

func (m *Manager) sendHTMLNotice(ctx context.Context, room ref.RoomID, markdown string) {
	content := messaging.NewHTMLNotice(markdown, msgfmt.Render(markdown))
	if _, err := m.session.SendMessage(ctx, room, content); err != nil {
		m.logger.Warn("notice undeliverable",
			"room_id", room.String(),
			"error", err,
		)
	}
}
