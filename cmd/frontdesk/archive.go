// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frontdesk/lib/archive"
	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/secret"
)

func runArchive(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: frontdesk archive <list|show|verify> [flags]")
	}
	switch args[0] {
	case "list":
		return runArchiveList(args[1:])
	case "show":
		return runArchiveShow(args[1:])
	case "verify":
		return runArchiveVerify(args[1:])
	default:
		return fmt.Errorf("unknown archive subcommand: %q", args[0])
	}
}

// archiveFlags adds the flags shared by the archive subcommands.
func archiveFlags(flags *pflag.FlagSet, configPath, dir, keyFile *string) {
	flags.StringVar(configPath, "config", "", "path to frontdesk.yaml (default: $FRONTDESK_CONFIG)")
	flags.StringVar(dir, "dir", "", "archive directory (default: derived from configuration)")
	flags.StringVar(keyFile, "key", "", "archive master key file, for sealed entries (default: from configuration)")
}

// openArchive opens the transcript archive for reading. With no
// explicit --dir the directory and key file come from the service
// configuration. A missing key still lists fine; show and verify need
// it for sealed entries.
func openArchive(configPath, dir, keyFile string) (*archive.Archive, error) {
	if dir == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading configuration (or pass --dir): %w", err)
		}
		dir = cfg.Paths.Archive
		if keyFile == "" {
			keyFile = cfg.Archive.KeyFile
		}
	}
	if dir == "" {
		return nil, fmt.Errorf("no archive directory (set paths.archive or pass --dir)")
	}

	var key *secret.Buffer
	if keyFile != "" {
		loaded, err := archive.LoadKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading archive key: %w", err)
		}
		key = loaded
	}
	return archive.Open(dir, key, clock.Real())
}

func runArchiveList(args []string) error {
	var configPath, dir, keyFile string
	flags := pflag.NewFlagSet("archive list", pflag.ContinueOnError)
	archiveFlags(flags, &configPath, &dir, &keyFile)
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	arc, err := openArchive(configPath, dir, keyFile)
	if err != nil {
		return err
	}
	defer arc.Close()

	entries, err := arc.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Archive is empty.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "HASH\tNAME\tCREATED\tSIZE\tSEALED")
	for _, entry := range entries {
		sealed := "no"
		if entry.Sealed {
			sealed = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
			entry.Hash.String()[:16],
			entry.Name,
			entry.CreatedAt.Format(time.RFC3339),
			entry.Size,
			sealed,
		)
	}
	return writer.Flush()
}

func runArchiveShow(args []string) error {
	var configPath, dir, keyFile string
	flags := pflag.NewFlagSet("archive show", pflag.ContinueOnError)
	archiveFlags(flags, &configPath, &dir, &keyFile)
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: frontdesk archive show <hash> [flags]")
	}

	arc, err := openArchive(configPath, dir, keyFile)
	if err != nil {
		return err
	}
	defer arc.Close()

	hash, err := resolveHash(arc, flags.Arg(0))
	if err != nil {
		return err
	}

	entry, content, err := arc.Get(hash)
	if err != nil {
		if errors.Is(err, archive.ErrSealed) {
			return fmt.Errorf("%w (pass --key)", err)
		}
		return err
	}

	// Content goes to stdout so it can be piped; metadata to stderr.
	fmt.Fprintf(os.Stderr, "# %s (%d bytes, stored %s)\n",
		entry.Name, entry.Size, entry.CreatedAt.Format(time.RFC3339))
	_, err = os.Stdout.Write(content)
	return err
}

func runArchiveVerify(args []string) error {
	var configPath, dir, keyFile string
	flags := pflag.NewFlagSet("archive verify", pflag.ContinueOnError)
	archiveFlags(flags, &configPath, &dir, &keyFile)
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	arc, err := openArchive(configPath, dir, keyFile)
	if err != nil {
		return err
	}
	defer arc.Close()

	entries, err := arc.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Archive is empty.")
		return nil
	}

	// Get re-derives and checks the content hash, so a successful
	// read is a full integrity check.
	var verified, sealed int
	var failures []string
	for _, entry := range entries {
		_, _, err := arc.Get(entry.Hash)
		switch {
		case err == nil:
			verified++
		case errors.Is(err, archive.ErrSealed):
			sealed++
		default:
			failures = append(failures, fmt.Sprintf("%s (%s): %v",
				entry.Hash.String()[:16], entry.Name, err))
		}
	}

	fmt.Printf("Verified %d of %d entries", verified, len(entries))
	if sealed > 0 {
		fmt.Printf(", %d sealed entries skipped (no key)", sealed)
	}
	fmt.Println()

	for _, failure := range failures {
		fmt.Fprintf(os.Stderr, "corrupt: %s\n", failure)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d corrupt entries", len(failures))
	}
	return nil
}

// resolveHash resolves a full or abbreviated entry hash against the
// archive contents. Abbreviations must match exactly one entry.
func resolveHash(arc *archive.Archive, spec string) (archive.Hash, error) {
	if hash, err := archive.ParseHash(spec); err == nil {
		return hash, nil
	}

	entries, err := arc.List()
	if err != nil {
		return archive.Hash{}, err
	}
	prefix := strings.ToLower(spec)
	var matches []archive.Hash
	for _, entry := range entries {
		if strings.HasPrefix(entry.Hash.String(), prefix) {
			matches = append(matches, entry.Hash)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return archive.Hash{}, fmt.Errorf("no archive entry matches %q", spec)
	default:
		return archive.Hash{}, fmt.Errorf("%q is ambiguous, %d entries match", spec, len(matches))
	}
}
