// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticketstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// ErrTicketExists is returned by Put when the user already has an open
// ticket. The caller reports the existing room instead of overwriting.
var ErrTicketExists = errors.New("ticketstore: user already has an open ticket")

// Ticket is one open ticket: the owning user, the ticket room, and the
// service label attached at intake. Service is zero for tickets opened
// without a catalog order.
type Ticket struct {
	User    ref.UserID
	Room    ref.RoomID
	Service ref.ServiceCode
}

// Store is the bijective user-to-room ticket mapping with a JSON
// snapshot on disk. In-memory state is authoritative for the life of
// the process: every mutation flushes the snapshot synchronously, and
// a flush failure is logged without rolling the mutation back.
//
// All methods are safe for concurrent use. Put performs its duplicate
// check and insert inside one critical section, so two concurrent
// ticket creations for the same user resolve to exactly one winner.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	userRoom  map[ref.UserID]ref.RoomID
	roomUser  map[ref.RoomID]ref.UserID
	roomLabel map[ref.RoomID]ref.ServiceCode
}

// snapshot is the exact on-disk format. Keys are Matrix IDs as
// strings; tickets maps user to room, channel_to_user is the inverse,
// and channel_service carries the per-room service label.
type snapshot struct {
	Tickets        map[string]string `json:"tickets"`
	ChannelToUser  map[string]string `json:"channel_to_user"`
	ChannelService map[string]string `json:"channel_service"`
}

// Open loads the snapshot at path, or starts empty when the file does
// not exist. A corrupt snapshot is an error: starting empty would
// orphan every open ticket room, so the operator must repair or remove
// the file deliberately.
//
// Entries whose two directions disagree (a user in tickets whose room
// maps back to someone else, or a room in channel_to_user with no
// forward entry) are dropped with a warning; the loaded store is
// always bijective.
func Open(path string, logger *slog.Logger) (*Store, error) {
	store := &Store{
		path:      path,
		logger:    logger,
		userRoom:  make(map[ref.UserID]ref.RoomID),
		roomUser:  make(map[ref.RoomID]ref.UserID),
		roomLabel: make(map[ref.RoomID]ref.ServiceCode),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("reading ticket snapshot %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing ticket snapshot %s: %w", path, err)
	}
	store.load(snap)

	return store, nil
}

// load populates the maps from a snapshot, dropping entries that
// violate the bijection or fail ID validation.
func (s *Store) load(snap snapshot) {
	for rawUser, rawRoom := range snap.Tickets {
		user, err := ref.ParseUserID(rawUser)
		if err != nil {
			s.logger.Warn("dropping snapshot entry with invalid user ID",
				"user", rawUser, "error", err)
			continue
		}
		room, err := ref.ParseRoomID(rawRoom)
		if err != nil {
			s.logger.Warn("dropping snapshot entry with invalid room ID",
				"user", rawUser, "room", rawRoom, "error", err)
			continue
		}

		// The reverse map must agree, otherwise the pair is the
		// residue of an interrupted mutation and gets dropped.
		if snap.ChannelToUser[rawRoom] != rawUser {
			s.logger.Warn("dropping snapshot entry without matching reverse mapping",
				"user", rawUser, "room", rawRoom)
			continue
		}

		s.userRoom[user] = room
		s.roomUser[room] = user

		if rawLabel, ok := snap.ChannelService[rawRoom]; ok {
			label, err := ref.ParseServiceCode(rawLabel)
			if err != nil {
				s.logger.Warn("dropping invalid service label",
					"room", rawRoom, "label", rawLabel, "error", err)
				continue
			}
			s.roomLabel[room] = label
		}
	}

	// Reverse entries whose forward direction is missing.
	for rawRoom, rawUser := range snap.ChannelToUser {
		if snap.Tickets[rawUser] != rawRoom {
			s.logger.Warn("dropping orphaned reverse mapping",
				"room", rawRoom, "user", rawUser)
		}
	}
}

// UserRoom returns the ticket room for a user.
func (s *Store) UserRoom(user ref.UserID) (ref.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.userRoom[user]
	return room, ok
}

// RoomUser returns the owning user of a ticket room.
func (s *Store) RoomUser(room ref.RoomID) (ref.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.roomUser[room]
	return user, ok
}

// ServiceLabel returns the service label attached to a ticket room.
// ok is false for tickets opened without a catalog order.
func (s *Store) ServiceLabel(room ref.RoomID) (ref.ServiceCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.roomLabel[room]
	return label, ok
}

// Put records a new ticket. Returns ErrTicketExists when the user
// already has one - the existing mapping is never overwritten. A zero
// label is allowed and stored as "no label".
func (s *Store) Put(user ref.UserID, room ref.RoomID, label ref.ServiceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.userRoom[user]; ok {
		return fmt.Errorf("%w: %s is mapped to %s", ErrTicketExists, user, existing)
	}
	if existing, ok := s.roomUser[room]; ok {
		return fmt.Errorf("ticketstore: room %s already belongs to %s", room, existing)
	}

	s.userRoom[user] = room
	s.roomUser[room] = user
	if !label.IsZero() {
		s.roomLabel[room] = label
	}

	s.flushLocked()
	return nil
}

// RemoveUser removes the ticket owned by user. Both directions and the
// label are removed together. Returns false when the user has no
// ticket.
func (s *Store) RemoveUser(user ref.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.userRoom[user]
	if !ok {
		return false
	}

	delete(s.userRoom, user)
	delete(s.roomUser, room)
	delete(s.roomLabel, room)

	s.flushLocked()
	return true
}

// RemoveRoom removes the ticket held in room. Both directions and the
// label are removed together. Returns false when the room is not a
// tracked ticket.
func (s *Store) RemoveRoom(room ref.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.roomUser[room]
	if !ok {
		return false
	}

	delete(s.roomUser, room)
	delete(s.userRoom, user)
	delete(s.roomLabel, room)

	s.flushLocked()
	return true
}

// Tickets returns all open tickets sorted by user ID.
func (s *Store) Tickets() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets := make([]Ticket, 0, len(s.userRoom))
	for user, room := range s.userRoom {
		tickets = append(tickets, Ticket{
			User:    user,
			Room:    room,
			Service: s.roomLabel[room],
		})
	}
	slices.SortFunc(tickets, func(a, b Ticket) int {
		return strings.Compare(a.User.String(), b.User.String())
	})
	return tickets
}

// Len returns the number of open tickets.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.userRoom)
}

// Snapshot returns the current state in the on-disk snapshot format.
// Used by the admin socket's snapshot action.
func (s *Store) Snapshot() (tickets, channelToUser, channelService map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	return snap.Tickets, snap.ChannelToUser, snap.ChannelService
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		Tickets:        make(map[string]string, len(s.userRoom)),
		ChannelToUser:  make(map[string]string, len(s.roomUser)),
		ChannelService: make(map[string]string, len(s.roomLabel)),
	}
	for user, room := range s.userRoom {
		snap.Tickets[user.String()] = room.String()
	}
	for room, user := range s.roomUser {
		snap.ChannelToUser[room.String()] = user.String()
	}
	for room, label := range s.roomLabel {
		snap.ChannelService[room.String()] = label.String()
	}
	return snap
}

// flushLocked writes the snapshot to disk. Failures are logged, not
// returned: the in-memory state is authoritative and the mutation has
// already happened. Callers hold s.mu.
func (s *Store) flushLocked() {
	if err := s.writeSnapshot(s.snapshotLocked()); err != nil {
		s.logger.Error("ticket snapshot flush failed; in-memory state unchanged",
			"path", s.path, "error", err)
	}
}

// writeSnapshot atomically replaces the snapshot file: write to a temp
// file in the same directory, then rename into place.
func (s *Store) writeSnapshot(snap snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "tickets-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing snapshot data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}

	success = true
	return nil
}
