// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/secret"
)

// sessionToken is the bearer token every startSession session carries.
const sessionToken = "frontdesk-test-token"

// startSession stands up an httptest server around handler and returns
// a Client plus a DirectSession authenticated against it as
// @frontdesk:local. Both are torn down with the test.
func startSession(t *testing.T, handler http.Handler) (*Client, *DirectSession) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@frontdesk:local"), sessionToken)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return client, session
}

// testBuffer wraps a string in a secret.Buffer that closes with the test.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// checkAuth fails the test when r does not carry the session token.
func checkAuth(t *testing.T, r *http.Request) {
	t.Helper()
	want := "Bearer " + sessionToken
	if got := r.Header.Get("Authorization"); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

// replyJSON writes value as the JSON response body.
func replyJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}
