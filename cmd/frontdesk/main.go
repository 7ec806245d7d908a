// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frontdesk/lib/config"
	"github.com/bureau-foundation/frontdesk/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "login":
		return runLogin(os.Args[2:])
	case "status":
		return runStatus(os.Args[2:])
	case "tickets":
		return runTickets(os.Args[2:])
	case "close":
		return runClose(os.Args[2:])
	case "snapshot":
		return runSnapshot(os.Args[2:])
	case "archive":
		return runArchive(os.Args[2:])
	case "version":
		version.Print("frontdesk")
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: frontdesk <subcommand> [flags]

Subcommands:
  login     Log in to the homeserver and save the service session
  status    Show the running service's status
  tickets   List open tickets
  close     Close a ticket by room or by user
  snapshot  Dump the service's ticket state as JSON
  archive   Inspect the transcript archive (list, show, verify)
  version   Print version information

Run 'frontdesk <subcommand> --help' for subcommand flags.
`)
}

// parseFlags parses args and reports whether the caller should
// proceed. --help prints the flag set's usage and stops without an
// error.
func parseFlags(flags *pflag.FlagSet, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// loadConfig loads the service configuration. An explicit path wins
// over the FRONTDESK_CONFIG environment variable. Subcommands only
// read paths from the result, so no validation happens here; the
// service owns configuration validation.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
