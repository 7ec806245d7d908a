// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticketstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return testStoreAt(t, filepath.Join(t.TempDir(), "tickets.json"))
}

func testStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

// checkBijective verifies that forward and reverse maps agree exactly.
func checkBijective(t *testing.T, store *Store) {
	t.Helper()
	tickets, channelToUser, channelService := store.Snapshot()

	if len(tickets) != len(channelToUser) {
		t.Fatalf("map sizes diverged: %d tickets, %d reverse entries", len(tickets), len(channelToUser))
	}
	for user, room := range tickets {
		if channelToUser[room] != user {
			t.Errorf("reverse mapping for %s is %q, want %q", room, channelToUser[room], user)
		}
	}
	for room := range channelService {
		if _, ok := channelToUser[room]; !ok {
			t.Errorf("service label for untracked room %s", room)
		}
	}
}

func TestPutAndLookup(t *testing.T) {
	store := testStore(t)

	frida := ref.MustParseUserID("@frida:local")
	room := ref.MustParseRoomID("!ticket1:local")
	label := ref.MustParseServiceCode("billing")

	if err := store.Put(frida, room, label); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	gotRoom, ok := store.UserRoom(frida)
	if !ok || gotRoom != room {
		t.Errorf("UserRoom = (%s, %v), want (%s, true)", gotRoom, ok, room)
	}

	gotUser, ok := store.RoomUser(room)
	if !ok || gotUser != frida {
		t.Errorf("RoomUser = (%s, %v), want (%s, true)", gotUser, ok, frida)
	}

	gotLabel, ok := store.ServiceLabel(room)
	if !ok || gotLabel != label {
		t.Errorf("ServiceLabel = (%s, %v), want (%s, true)", gotLabel, ok, label)
	}

	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	checkBijective(t, store)
}

func TestPutWithoutLabel(t *testing.T) {
	store := testStore(t)

	frida := ref.MustParseUserID("@frida:local")
	room := ref.MustParseRoomID("!ticket1:local")

	if err := store.Put(frida, room, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := store.ServiceLabel(room); ok {
		t.Error("expected no service label for a plain support ticket")
	}
	checkBijective(t, store)
}

func TestPutDuplicateUser(t *testing.T) {
	store := testStore(t)

	frida := ref.MustParseUserID("@frida:local")
	first := ref.MustParseRoomID("!first:local")
	second := ref.MustParseRoomID("!second:local")

	if err := store.Put(frida, first, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := store.Put(frida, second, ref.ServiceCode{})
	if !errors.Is(err, ErrTicketExists) {
		t.Fatalf("expected ErrTicketExists, got: %v", err)
	}

	// The original mapping must be untouched.
	room, ok := store.UserRoom(frida)
	if !ok || room != first {
		t.Errorf("UserRoom after conflict = (%s, %v), want (%s, true)", room, ok, first)
	}
	if _, ok := store.RoomUser(second); ok {
		t.Error("losing room must not be recorded")
	}
	checkBijective(t, store)
}

func TestRemoveUser(t *testing.T) {
	store := testStore(t)

	frida := ref.MustParseUserID("@frida:local")
	room := ref.MustParseRoomID("!ticket1:local")

	if err := store.Put(frida, room, ref.MustParseServiceCode("billing")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !store.RemoveUser(frida) {
		t.Fatal("RemoveUser returned false for an open ticket")
	}

	// Both directions and the label are gone.
	if _, ok := store.UserRoom(frida); ok {
		t.Error("user still mapped after removal")
	}
	if _, ok := store.RoomUser(room); ok {
		t.Error("room still mapped after removal")
	}
	if _, ok := store.ServiceLabel(room); ok {
		t.Error("label survived removal")
	}

	if store.RemoveUser(frida) {
		t.Error("second RemoveUser should return false")
	}
	checkBijective(t, store)
}

func TestRemoveRoom(t *testing.T) {
	store := testStore(t)

	frida := ref.MustParseUserID("@frida:local")
	room := ref.MustParseRoomID("!ticket1:local")

	if err := store.Put(frida, room, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !store.RemoveRoom(room) {
		t.Fatal("RemoveRoom returned false for a tracked room")
	}
	if _, ok := store.UserRoom(frida); ok {
		t.Error("user still mapped after room removal")
	}

	if store.RemoveRoom(room) {
		t.Error("second RemoveRoom should return false")
	}
	checkBijective(t, store)
}

func TestTicketsSorted(t *testing.T) {
	store := testStore(t)

	users := []string{"@zoe:local", "@alice:local", "@mallory:local"}
	rooms := []string{"!z:local", "!a:local", "!m:local"}
	for i := range users {
		err := store.Put(ref.MustParseUserID(users[i]), ref.MustParseRoomID(rooms[i]), ref.ServiceCode{})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	tickets := store.Tickets()
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	wantOrder := []string{"@alice:local", "@mallory:local", "@zoe:local"}
	for i, want := range wantOrder {
		if tickets[i].User.String() != want {
			t.Errorf("tickets[%d].User = %s, want %s", i, tickets[i].User, want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	store := testStoreAt(t, path)

	frida := ref.MustParseUserID("@frida:local")
	bob := ref.MustParseUserID("@bob:local")
	fridaRoom := ref.MustParseRoomID("!frida:local")
	bobRoom := ref.MustParseRoomID("!bob:local")

	if err := store.Put(frida, fridaRoom, ref.MustParseServiceCode("billing")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(bob, bobRoom, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	store.RemoveUser(bob)

	// A fresh store loaded from the same snapshot sees the same state.
	reloaded := testStoreAt(t, path)
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded Len = %d, want 1", reloaded.Len())
	}
	room, ok := reloaded.UserRoom(frida)
	if !ok || room != fridaRoom {
		t.Errorf("reloaded UserRoom = (%s, %v), want (%s, true)", room, ok, fridaRoom)
	}
	label, ok := reloaded.ServiceLabel(fridaRoom)
	if !ok || label.String() != "billing" {
		t.Errorf("reloaded ServiceLabel = (%s, %v), want (billing, true)", label, ok)
	}
	if _, ok := reloaded.UserRoom(bob); ok {
		t.Error("removed ticket resurrected by reload")
	}
	checkBijective(t, reloaded)
}

func TestSnapshotFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	store := testStoreAt(t, path)

	err := store.Put(
		ref.MustParseUserID("@frida:local"),
		ref.MustParseRoomID("!ticket1:local"),
		ref.MustParseServiceCode("billing"),
	)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}

	var snap struct {
		Tickets        map[string]string `json:"tickets"`
		ChannelToUser  map[string]string `json:"channel_to_user"`
		ChannelService map[string]string `json:"channel_service"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}

	if snap.Tickets["@frida:local"] != "!ticket1:local" {
		t.Errorf("tickets key: %v", snap.Tickets)
	}
	if snap.ChannelToUser["!ticket1:local"] != "@frida:local" {
		t.Errorf("channel_to_user key: %v", snap.ChannelToUser)
	}
	if snap.ChannelService["!ticket1:local"] != "billing" {
		t.Errorf("channel_service key: %v", snap.ChannelService)
	}
}

func TestOpenMissingFile(t *testing.T) {
	store := testStoreAt(t, filepath.Join(t.TempDir(), "does-not-exist.json"))
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d tickets", store.Len())
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	_, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestOpenRepairsBrokenBijection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")

	// @frida's room maps back to someone else; @orphan has no reverse
	// entry; !stray:local has no forward entry. Only @bob survives.
	raw := `{
		"tickets": {
			"@frida:local": "!hijacked:local",
			"@orphan:local": "!orphan:local",
			"@bob:local": "!bob:local"
		},
		"channel_to_user": {
			"!hijacked:local": "@mallory:local",
			"!bob:local": "@bob:local",
			"!stray:local": "@stray:local"
		},
		"channel_service": {
			"!bob:local": "billing",
			"!stray:local": "billing"
		}
	}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}

	store := testStoreAt(t, path)

	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (only the consistent pair)", store.Len())
	}
	room, ok := store.UserRoom(ref.MustParseUserID("@bob:local"))
	if !ok || room != ref.MustParseRoomID("!bob:local") {
		t.Errorf("surviving pair = (%s, %v)", room, ok)
	}
	if _, ok := store.UserRoom(ref.MustParseUserID("@frida:local")); ok {
		t.Error("mismatched pair should be dropped")
	}
	if _, ok := store.RoomUser(ref.MustParseRoomID("!stray:local")); ok {
		t.Error("orphaned reverse entry should be dropped")
	}
	checkBijective(t, store)
}

func TestFlushFailureKeepsMemoryAuthoritative(t *testing.T) {
	dir := t.TempDir()
	store := testStoreAt(t, filepath.Join(dir, "sub", "tickets.json"))

	// The parent directory never existed, so every flush fails. The
	// mutation still succeeds in memory.
	frida := ref.MustParseUserID("@frida:local")
	room := ref.MustParseRoomID("!ticket1:local")
	if err := store.Put(frida, room, ref.ServiceCode{}); err != nil {
		t.Fatalf("Put should succeed despite flush failure: %v", err)
	}

	got, ok := store.UserRoom(frida)
	if !ok || got != room {
		t.Errorf("in-memory state lost after flush failure: (%s, %v)", got, ok)
	}
}

func TestConcurrentPutSameUser(t *testing.T) {
	store := testStore(t)
	frida := ref.MustParseUserID("@frida:local")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room := ref.MustParseRoomID(fmt.Sprintf("!room%d:local", i))
			errs[i] = store.Put(frida, room, ref.ServiceCode{})
		}()
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, ErrTicketExists) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("%d Puts succeeded for one user, want exactly 1", won)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	checkBijective(t, store)
}
