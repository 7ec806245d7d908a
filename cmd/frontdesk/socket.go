// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frontdesk/lib/codec"
	"github.com/bureau-foundation/frontdesk/lib/service"
)

// socketFlags adds the flags shared by every socket subcommand.
func socketFlags(flags *pflag.FlagSet, configPath, socketPath *string) {
	flags.StringVar(configPath, "config", "", "path to frontdesk.yaml (default: $FRONTDESK_CONFIG)")
	flags.StringVar(socketPath, "socket", "", "admin socket path (default: derived from configuration)")
}

// socketClient builds the admin-socket client. An explicit --socket
// path wins; otherwise the path is derived from the service
// configuration.
func socketClient(configPath, socketPath string) (*service.ServiceClient, error) {
	if socketPath == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading configuration (or pass --socket): %w", err)
		}
		socketPath = cfg.SocketPath()
	}
	return service.NewServiceClient(socketPath), nil
}

// The reply structs mirror the action responses in
// cmd/frontdesk-service/socket.go field for field.

type statusReply struct {
	Version       string  `cbor:"version"`
	UserID        string  `cbor:"user_id"`
	UptimeSeconds float64 `cbor:"uptime_seconds"`
	OpenTickets   int     `cbor:"open_tickets"`
}

func runStatus(args []string) error {
	var configPath, socketPath string
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	socketFlags(flags, &configPath, &socketPath)
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	client, err := socketClient(configPath, socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var status statusReply
	if err := client.Call(ctx, "status", nil, &status); err != nil {
		return err
	}

	uptime := time.Duration(status.UptimeSeconds * float64(time.Second)).Round(time.Second)
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "User:\t%s\n", status.UserID)
	fmt.Fprintf(writer, "Version:\t%s\n", status.Version)
	fmt.Fprintf(writer, "Uptime:\t%s\n", uptime)
	fmt.Fprintf(writer, "Open tickets:\t%d\n", status.OpenTickets)
	return writer.Flush()
}

type ticketEntry struct {
	User    string `cbor:"user"`
	Room    string `cbor:"room"`
	Service string `cbor:"service,omitempty"`
}

type ticketsReply struct {
	Tickets []ticketEntry `cbor:"tickets"`
}

func runTickets(args []string) error {
	var configPath, socketPath string
	flags := pflag.NewFlagSet("tickets", pflag.ContinueOnError)
	socketFlags(flags, &configPath, &socketPath)
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	client, err := socketClient(configPath, socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply ticketsReply
	if err := client.Call(ctx, "tickets", nil, &reply); err != nil {
		return err
	}

	if len(reply.Tickets) == 0 {
		fmt.Println("No open tickets.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "USER\tROOM\tSERVICE")
	for _, ticket := range reply.Tickets {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", ticket.User, ticket.Room, ticket.Service)
	}
	return writer.Flush()
}

type closeReply struct {
	User        string   `cbor:"user"`
	Room        string   `cbor:"room"`
	Transcript  string   `cbor:"transcript,omitempty"`
	ArchiveHash string   `cbor:"archive_hash,omitempty"`
	Warnings    []string `cbor:"warnings,omitempty"`
}

func runClose(args []string) error {
	var configPath, socketPath, room, user, reason string
	flags := pflag.NewFlagSet("close", pflag.ContinueOnError)
	socketFlags(flags, &configPath, &socketPath)
	flags.StringVar(&room, "room", "", "ticket room ID to close")
	flags.StringVar(&user, "user", "", "close the ticket owned by this user")
	flags.StringVar(&reason, "reason", "", "reason recorded in the transcript and the log room")
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	client, err := socketClient(configPath, socketPath)
	if err != nil {
		return err
	}

	// Closing generates the transcript and dissolves the room, all
	// over the homeserver. Give it more room than a plain query.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fields := map[string]any{}
	if room != "" {
		fields["room"] = room
	}
	if user != "" {
		fields["user"] = user
	}
	if reason != "" {
		fields["reason"] = reason
	}

	var closed closeReply
	if err := client.Call(ctx, "close", fields, &closed); err != nil {
		return err
	}

	fmt.Printf("Closed ticket %s for %s\n", closed.Room, closed.User)
	if closed.Transcript != "" {
		fmt.Printf("Transcript: %s\n", closed.Transcript)
	}
	if closed.ArchiveHash != "" {
		fmt.Printf("Archive entry: %s\n", closed.ArchiveHash)
	}
	for _, warning := range closed.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return nil
}

type snapshotReply struct {
	Tickets        map[string]string `cbor:"tickets" json:"tickets"`
	ChannelToUser  map[string]string `cbor:"channel_to_user" json:"channel_to_user"`
	ChannelService map[string]string `cbor:"channel_service" json:"channel_service"`
}

func runSnapshot(args []string) error {
	var configPath, socketPath string
	var rawCBOR bool
	flags := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
	socketFlags(flags, &configPath, &socketPath)
	flags.BoolVar(&rawCBOR, "cbor", false, "print the wire response in CBOR diagnostic notation")
	proceed, err := parseFlags(flags, args)
	if err != nil || !proceed {
		return err
	}

	client, err := socketClient(configPath, socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if rawCBOR {
		var raw codec.RawMessage
		if err := client.Call(ctx, "snapshot", nil, &raw); err != nil {
			return err
		}
		notation, err := codec.Diagnose(raw)
		if err != nil {
			return fmt.Errorf("rendering diagnostic notation: %w", err)
		}
		fmt.Println(notation)
		return nil
	}

	var snapshot snapshotReply
	if err := client.Call(ctx, "snapshot", nil, &snapshot); err != nil {
		return err
	}

	// Same shape as the on-disk snapshot file, so the output can be
	// dropped into a fresh state directory as-is.
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	fmt.Printf("%s\n", encoded)
	return nil
}
