// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/frontdesk/lib/secret"
	"github.com/bureau-foundation/frontdesk/lib/service"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// runLogin authenticates the service account and writes the session
// file that frontdesk-service loads at startup. Run once when
// deploying; the saved token is reused until the homeserver stops
// accepting it.
func runLogin(args []string) error {
	var (
		configPath   string
		homeserver   string
		stateDir     string
		passwordFile string
	)
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to frontdesk.yaml (default: $FRONTDESK_CONFIG)")
	flags.StringVar(&homeserver, "homeserver", "", "homeserver URL (default: from configuration)")
	flags.StringVar(&stateDir, "state-dir", "", "directory for the session file (default: from configuration)")
	flags.StringVar(&passwordFile, "password-file", "", "read the password from this file, or - for stdin (default: prompt)")
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	if flags.NArg() != 1 {
		return fmt.Errorf("usage: frontdesk login <username> [flags]")
	}
	username := flags.Arg(0)

	if homeserver == "" || stateDir == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration (pass --homeserver and --state-dir to go without): %w", err)
		}
		if homeserver == "" {
			homeserver = cfg.Homeserver.URL
		}
		if stateDir == "" {
			stateDir = cfg.Paths.State
		}
	}
	if homeserver == "" {
		return fmt.Errorf("no homeserver URL (set homeserver.url or pass --homeserver)")
	}
	if stateDir == "" {
		return fmt.Errorf("no state directory (set paths.state or pass --state-dir)")
	}

	password, err := readLoginPassword(passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: homeserver})
	if err != nil {
		return fmt.Errorf("building matrix client: %w", err)
	}

	session, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before persisting it.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := service.SaveSession(stateDir, homeserver, session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Logged in as %s\n", userID)
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", filepath.Join(stateDir, "session.json"))
	return nil
}

// readLoginPassword reads the password from the given file ("-" for
// stdin), or prompts on the terminal with echo disabled when no file
// is given.
func readLoginPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" {
		return secret.ReadFromPath(passwordFile)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal for the password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}
