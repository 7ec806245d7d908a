// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/secret"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// sessionFileName is the fixed name of the session file inside the
// service state directory.
const sessionFileName = "session.json"

// SessionData is the JSON layout of the session file. "frontdesk
// login" writes it once at deploy time; the service reads it on every
// start. The access token inside is the service account's only
// credential, which is why the file is 0600 inside the 0700 state
// directory.
type SessionData struct {
	HomeserverURL string `json:"homeserver_url"`
	UserID        string `json:"user_id"`
	AccessToken   string `json:"access_token"`
}

// LoadSession builds an authenticated Matrix session from the session
// file under stateDir. A non-empty homeserverURL overrides the URL
// recorded in the file, which covers homeserver moves without a fresh
// login as long as the token stays valid.
//
// The token is copied into guarded memory by the messaging layer and
// the file bytes are zeroed as soon as they are parsed. Close the
// returned session to release the guarded copy.
func LoadSession(stateDir, homeserverURL string, logger *slog.Logger) (*messaging.Client, *messaging.DirectSession, error) {
	path := filepath.Join(stateDir, sessionFileName)
	data, err := readSessionFile(path)
	if err != nil {
		return nil, nil, err
	}

	url := data.HomeserverURL
	if homeserverURL != "" {
		url = homeserverURL
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: url,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building matrix client: %w", err)
	}

	userID, err := ref.ParseUserID(data.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid user_id in %s: %w", path, err)
	}

	session, err := client.SessionFromToken(userID, data.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	return client, session, nil
}

// readSessionFile parses the session file, zeroing the raw bytes on
// every path out.
func readSessionFile(path string) (SessionData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SessionData{}, fmt.Errorf("reading session from %s: %w", path, err)
	}
	defer secret.Zero(raw)

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return SessionData{}, fmt.Errorf("parsing session from %s: %w", path, err)
	}
	if data.AccessToken == "" {
		return SessionData{}, fmt.Errorf("session file %s has empty access token", path)
	}
	return data, nil
}

// SaveSession writes the session file that LoadSession picks up, mode
// 0600. The serialized bytes are zeroed after the write so the
// cleartext token does not linger in process memory.
func SaveSession(stateDir, homeserverURL string, session *messaging.DirectSession) error {
	raw, err := json.Marshal(SessionData{
		HomeserverURL: homeserverURL,
		UserID:        session.UserID().String(),
		AccessToken:   session.AccessToken(),
	})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	path := filepath.Join(stateDir, sessionFileName)
	writeErr := os.WriteFile(path, raw, 0600)
	secret.Zero(raw)
	if writeErr != nil {
		return fmt.Errorf("writing session to %s: %w", path, writeErr)
	}
	return nil
}

// ValidateSession confirms the loaded token still works by asking the
// homeserver who it belongs to. Call once at startup: a dead token
// should stop the service before it provisions anything.
func ValidateSession(ctx context.Context, session messaging.Session) (ref.UserID, error) {
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("matrix session check: %w", err)
	}
	return userID, nil
}
