// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// mockSession implements the slice of messaging.Session that
// provisioning touches. The embedded interface is nil, so any call to
// a method without a function field panics, catching unexpected API
// use immediately.
type mockSession struct {
	messaging.Session
	userID ref.UserID

	resolveAlias   func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	createRoom     func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error)
	sendStateEvent func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
}

func (m *mockSession) UserID() ref.UserID { return m.userID }

func (m *mockSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	if m.resolveAlias == nil {
		panic("ResolveAlias not wired")
	}
	return m.resolveAlias(ctx, alias)
}

func (m *mockSession) CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	if m.createRoom == nil {
		panic("CreateRoom not wired")
	}
	return m.createRoom(ctx, request)
}

func (m *mockSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	if m.sendStateEvent == nil {
		panic("SendStateEvent not wired")
	}
	return m.sendStateEvent(ctx, roomID, eventType, stateKey, content)
}

var (
	serviceUser = ref.MustParseUserID("@frontdesk:local")
	staffOne    = ref.MustParseUserID("@mira:local")
	staffTwo    = ref.MustParseUserID("@omar:local")
	customer    = ref.MustParseUserID("@alice:local")
	spaceID     = ref.MustParseRoomID("!space:local")
)

func testConfig() Config {
	return Config{
		ServerName:   ref.MustParseServerName("local"),
		SpaceAlias:   ref.MustParseRoomAlias("#support:local"),
		SpaceName:    "Support",
		LogRoomAlias: ref.MustParseRoomAlias("#support-log:local"),
		LogRoomName:  "Support Log",
		TicketPrefix: "ticket",
		Staff:        []ref.UserID{staffOne, staffTwo},
		StaffLevel:   75,
	}
}

func testProvisioner(session *mockSession) *Provisioner {
	session.userID = serviceUser
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(session, testConfig(), logger)
}

func notFoundError() error {
	return &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
}

func TestEnsureSpaceResolvesExisting(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			if alias.String() != "#support:local" {
				t.Errorf("resolved alias %s", alias)
			}
			return spaceID, nil
		},
	}

	roomID, err := testProvisioner(session).EnsureSpace(context.Background())
	if err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if roomID != spaceID {
		t.Errorf("got %s, want %s", roomID, spaceID)
	}
}

func TestEnsureSpaceCreates(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return ref.RoomID{}, notFoundError()
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			if request.Name != "Support" {
				t.Errorf("name = %q", request.Name)
			}
			if request.Alias != "support" {
				t.Errorf("alias = %q, want local part only", request.Alias)
			}
			if request.CreationContent["type"] != "m.space" {
				t.Errorf("creation content = %v", request.CreationContent)
			}
			if request.Preset != "private_chat" || request.Visibility != "private" {
				t.Errorf("preset = %q, visibility = %q", request.Preset, request.Visibility)
			}
			return &messaging.CreateRoomResponse{RoomID: spaceID}, nil
		},
	}

	roomID, err := testProvisioner(session).EnsureSpace(context.Background())
	if err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if roomID != spaceID {
		t.Errorf("got %s, want %s", roomID, spaceID)
	}
}

func TestEnsureSpaceCreateRace(t *testing.T) {
	resolveCalls := 0
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			resolveCalls++
			if resolveCalls == 1 {
				return ref.RoomID{}, notFoundError()
			}
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			return nil, &messaging.MatrixError{Code: messaging.ErrCodeRoomInUse, Message: "alias taken", StatusCode: 400}
		},
	}

	roomID, err := testProvisioner(session).EnsureSpace(context.Background())
	if err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if roomID != spaceID {
		t.Errorf("got %s, want %s", roomID, spaceID)
	}
	if resolveCalls != 2 {
		t.Errorf("resolve called %d times, want 2", resolveCalls)
	}
}

func TestEnsureSpaceResolveFailure(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeUnknown, Message: "internal", StatusCode: 500}
		},
	}

	_, err := testProvisioner(session).EnsureSpace(context.Background())
	if err == nil {
		t.Fatal("expected error for non-404 resolve failure")
	}
	if !strings.Contains(err.Error(), "resolving space alias") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnsureSpaceForbidden(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return ref.RoomID{}, notFoundError()
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "no permission", StatusCode: 403}
		},
	}

	_, err := testProvisioner(session).EnsureSpace(context.Background())
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestEnsureLogRoomCreatesUnderSpace(t *testing.T) {
	logRoomID := ref.MustParseRoomID("!log:local")
	var childStateKey string

	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return ref.RoomID{}, notFoundError()
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			if request.Name != "Support Log" {
				t.Errorf("name = %q", request.Name)
			}
			if request.Alias != "support-log" {
				t.Errorf("alias = %q", request.Alias)
			}
			wantInvites := []string{staffOne.String(), staffTwo.String()}
			if len(request.Invite) != len(wantInvites) {
				t.Fatalf("invites = %v, want %v", request.Invite, wantInvites)
			}
			for index, invite := range wantInvites {
				if request.Invite[index] != invite {
					t.Errorf("invite[%d] = %q, want %q", index, request.Invite[index], invite)
				}
			}
			if len(request.InitialState) != 1 || request.InitialState[0].Type != "m.space.parent" {
				t.Errorf("initial state = %+v", request.InitialState)
			}
			if request.InitialState[0].StateKey != spaceID.String() {
				t.Errorf("parent state key = %q", request.InitialState[0].StateKey)
			}
			return &messaging.CreateRoomResponse{RoomID: logRoomID}, nil
		},
		sendStateEvent: func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
			if roomID != spaceID || eventType != "m.space.child" {
				t.Errorf("state event %s on %s", eventType, roomID)
			}
			childStateKey = stateKey
			return ref.MustParseEventID("$child"), nil
		},
	}

	roomID, err := testProvisioner(session).EnsureLogRoom(context.Background(), spaceID)
	if err != nil {
		t.Fatalf("EnsureLogRoom: %v", err)
	}
	if roomID != logRoomID {
		t.Errorf("got %s, want %s", roomID, logRoomID)
	}
	if childStateKey != logRoomID.String() {
		t.Errorf("child link state key = %q, want %q", childStateKey, logRoomID)
	}
}

func TestEnsureLogRoomResolvesExisting(t *testing.T) {
	logRoomID := ref.MustParseRoomID("!log:local")
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			if alias.String() != "#support-log:local" {
				t.Errorf("resolved alias %s", alias)
			}
			return logRoomID, nil
		},
	}

	roomID, err := testProvisioner(session).EnsureLogRoom(context.Background(), spaceID)
	if err != nil {
		t.Fatalf("EnsureLogRoom: %v", err)
	}
	if roomID != logRoomID {
		t.Errorf("got %s, want %s", roomID, logRoomID)
	}
}

var ticketNamePattern = regexp.MustCompile(`^ticket-alice-[0-9a-z]{6}$`)

func TestCreateTicketRoom(t *testing.T) {
	ticketRoomID := ref.MustParseRoomID("!ticket:local")
	childLinked := false

	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			if !ticketNamePattern.MatchString(request.Name) {
				t.Errorf("room name %q does not match %s", request.Name, ticketNamePattern)
			}
			if request.Alias != "" {
				t.Errorf("ticket room must not take an alias, got %q", request.Alias)
			}
			if !strings.Contains(request.Topic, customer.String()) {
				t.Errorf("topic = %q, want it to name the user", request.Topic)
			}
			if !strings.Contains(request.Topic, "backup") {
				t.Errorf("topic = %q, want it to carry the service label", request.Topic)
			}

			wantInvites := []string{customer.String(), staffOne.String(), staffTwo.String()}
			if len(request.Invite) != len(wantInvites) {
				t.Fatalf("invites = %v, want %v", request.Invite, wantInvites)
			}
			for index, invite := range wantInvites {
				if request.Invite[index] != invite {
					t.Errorf("invite[%d] = %q, want %q", index, request.Invite[index], invite)
				}
			}

			state := map[ref.EventType]messaging.StateEvent{}
			for _, event := range request.InitialState {
				state[event.Type] = event
			}
			if join, ok := state["m.room.join_rules"]; !ok {
				t.Error("missing join rules state")
			} else if join.Content.(map[string]any)["join_rule"] != "invite" {
				t.Errorf("join rules = %v", join.Content)
			}
			if visibility, ok := state["m.room.history_visibility"]; !ok {
				t.Error("missing history visibility state")
			} else if visibility.Content.(map[string]any)["history_visibility"] != "invited" {
				t.Errorf("history visibility = %v", visibility.Content)
			}
			if parent, ok := state["m.space.parent"]; !ok {
				t.Error("missing space parent state")
			} else if parent.StateKey != spaceID.String() {
				t.Errorf("parent state key = %q", parent.StateKey)
			}

			levels := request.PowerLevelContentOverride
			users := levels["users"].(map[string]any)
			if users[serviceUser.String()] != 100 {
				t.Errorf("service level = %v, want 100", users[serviceUser.String()])
			}
			if users[customer.String()] != 0 {
				t.Errorf("user level = %v, want 0", users[customer.String()])
			}
			if users[staffOne.String()] != 75 {
				t.Errorf("staff level = %v, want 75", users[staffOne.String()])
			}
			if levels["state_default"] != 75 || levels["redact"] != 75 || levels["kick"] != 75 {
				t.Errorf("levels = %v", levels)
			}
			return &messaging.CreateRoomResponse{RoomID: ticketRoomID}, nil
		},
		sendStateEvent: func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
			childLinked = true
			if stateKey != ticketRoomID.String() {
				t.Errorf("child state key = %q", stateKey)
			}
			return ref.MustParseEventID("$child"), nil
		},
	}

	label, err := ref.ParseServiceCode("backup")
	if err != nil {
		t.Fatal(err)
	}
	roomID, err := testProvisioner(session).CreateTicketRoom(context.Background(), customer, label)
	if err != nil {
		t.Fatalf("CreateTicketRoom: %v", err)
	}
	if roomID != ticketRoomID {
		t.Errorf("got %s, want %s", roomID, ticketRoomID)
	}
	if !childLinked {
		t.Error("room was not linked into the space")
	}
}

func TestCreateTicketRoomUnlabeled(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			if strings.Contains(request.Topic, "(") {
				t.Errorf("topic = %q, want no label parenthetical", request.Topic)
			}
			return &messaging.CreateRoomResponse{RoomID: ref.MustParseRoomID("!ticket:local")}, nil
		},
		sendStateEvent: func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
			return ref.MustParseEventID("$child"), nil
		},
	}

	if _, err := testProvisioner(session).CreateTicketRoom(context.Background(), customer, ref.ServiceCode{}); err != nil {
		t.Fatalf("CreateTicketRoom: %v", err)
	}
}

func TestCreateTicketRoomForStaffMember(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			// The opener is staff: invited once, keeps staff power.
			count := 0
			for _, invite := range request.Invite {
				if invite == staffOne.String() {
					count++
				}
			}
			if count != 1 {
				t.Errorf("staff owner invited %d times", count)
			}
			users := request.PowerLevelContentOverride["users"].(map[string]any)
			if users[staffOne.String()] != 75 {
				t.Errorf("staff owner level = %v, want 75", users[staffOne.String()])
			}
			return &messaging.CreateRoomResponse{RoomID: ref.MustParseRoomID("!ticket:local")}, nil
		},
		sendStateEvent: func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
			return ref.MustParseEventID("$child"), nil
		},
	}

	if _, err := testProvisioner(session).CreateTicketRoom(context.Background(), staffOne, ref.ServiceCode{}); err != nil {
		t.Fatalf("CreateTicketRoom: %v", err)
	}
}

func TestCreateTicketRoomForbidden(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "denied", StatusCode: 403}
		},
	}

	_, err := testProvisioner(session).CreateTicketRoom(context.Background(), customer, ref.ServiceCode{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateTicketRoomChildLinkFailureIsNonFatal(t *testing.T) {
	session := &mockSession{
		resolveAlias: func(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
			return spaceID, nil
		},
		createRoom: func(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
			return &messaging.CreateRoomResponse{RoomID: ref.MustParseRoomID("!ticket:local")}, nil
		},
		sendStateEvent: func(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
			return ref.EventID{}, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "denied", StatusCode: 403}
		},
	}

	roomID, err := testProvisioner(session).CreateTicketRoom(context.Background(), customer, ref.ServiceCode{})
	if err != nil {
		t.Fatalf("CreateTicketRoom: %v", err)
	}
	if roomID.IsZero() {
		t.Error("expected a room ID despite the failed space link")
	}
}

func TestSanitizeLocalpart(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"alice", "alice"},
		{"Alice", "alice"},
		{"bob.smith", "bob-smith"},
		{"under_score", "under-score"},
		{"mixed=chars/99", "mixed-chars-99"},
		{"héllo", "h-llo"},
		{"a-very-long-localpart-indeed", "a-very-long-localpar"},
	}

	for _, testCase := range tests {
		if got := sanitizeLocalpart(testCase.input); got != testCase.want {
			t.Errorf("sanitizeLocalpart(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}
}

func TestRandomSuffix(t *testing.T) {
	seen := map[string]bool{}
	for range 16 {
		suffix, err := randomSuffix()
		if err != nil {
			t.Fatalf("randomSuffix: %v", err)
		}
		if len(suffix) != 6 {
			t.Fatalf("suffix %q has length %d", suffix, len(suffix))
		}
		for _, character := range suffix {
			if !strings.ContainsRune(suffixAlphabet, character) {
				t.Fatalf("suffix %q contains %q", suffix, character)
			}
		}
		seen[suffix] = true
	}
	if len(seen) < 2 {
		t.Error("16 suffixes produced no variation")
	}
}
