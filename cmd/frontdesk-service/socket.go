// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/frontdesk/lib/codec"
	"github.com/bureau-foundation/frontdesk/lib/desk"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/service"
	"github.com/bureau-foundation/frontdesk/lib/version"
)

// registerActions registers the admin socket actions. The socket
// lives in the 0700 state directory; opening it is the credential, so
// no further authentication happens here.
func (rs *RelayService) registerActions(server *service.SocketServer) {
	server.Handle("status", rs.handleStatus)
	server.Handle("tickets", rs.handleTickets)
	server.Handle("close", rs.handleClose)
	server.Handle("snapshot", rs.handleSnapshot)
}

// statusResponse is the response to the "status" action.
type statusResponse struct {
	Version       string  `cbor:"version"`
	UserID        string  `cbor:"user_id"`
	UptimeSeconds float64 `cbor:"uptime_seconds"`
	OpenTickets   int     `cbor:"open_tickets"`
}

func (rs *RelayService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return statusResponse{
		Version:       version.Info(),
		UserID:        rs.serviceUser.String(),
		UptimeSeconds: rs.clock.Now().Sub(rs.startedAt).Seconds(),
		OpenTickets:   rs.store.Len(),
	}, nil
}

// ticketEntry is one open ticket in the "tickets" response.
type ticketEntry struct {
	User    string `cbor:"user"`
	Room    string `cbor:"room"`
	Service string `cbor:"service,omitempty"`
}

type ticketsResponse struct {
	Tickets []ticketEntry `cbor:"tickets"`
}

func (rs *RelayService) handleTickets(ctx context.Context, raw []byte) (any, error) {
	open := rs.store.Tickets()
	entries := make([]ticketEntry, 0, len(open))
	for _, ticket := range open {
		entry := ticketEntry{
			User: ticket.User.String(),
			Room: ticket.Room.String(),
		}
		if !ticket.Service.IsZero() {
			entry.Service = ticket.Service.String()
		}
		entries = append(entries, entry)
	}
	return ticketsResponse{Tickets: entries}, nil
}

// closeRequest selects a ticket by room ID or by owning user; exactly
// one must be given.
type closeRequest struct {
	Room   string `cbor:"room"`
	User   string `cbor:"user"`
	Reason string `cbor:"reason"`
}

type closeResponse struct {
	User        string   `cbor:"user"`
	Room        string   `cbor:"room"`
	Transcript  string   `cbor:"transcript,omitempty"`
	ArchiveHash string   `cbor:"archive_hash,omitempty"`
	Warnings    []string `cbor:"warnings,omitempty"`
}

func (rs *RelayService) handleClose(ctx context.Context, raw []byte) (any, error) {
	var request closeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid close request: %w", err)
	}

	room, err := rs.resolveTicketRoom(request)
	if err != nil {
		return nil, err
	}

	// The operator acts through the service account; staff policy
	// does not apply on this side of the socket.
	result := rs.desk.CloseTicket(ctx, room, rs.serviceUser, request.Reason)
	switch result.Outcome {
	case desk.OutcomeClosed:
		return closeResponse{
			User:        result.User.String(),
			Room:        room.String(),
			Transcript:  result.TranscriptPath,
			ArchiveHash: result.ArchiveHash,
			Warnings:    result.Warnings,
		}, nil
	case desk.OutcomeAlreadyClosing:
		return nil, fmt.Errorf("ticket %s is already being closed", room)
	case desk.OutcomeNotATicket:
		return nil, fmt.Errorf("%s is not a tracked ticket room", room)
	case desk.OutcomeTranscriptFailed:
		return nil, fmt.Errorf("transcript generation failed, ticket remains open: %w", result.Err)
	default:
		return nil, fmt.Errorf("unexpected close outcome %s", result.Outcome)
	}
}

func (rs *RelayService) resolveTicketRoom(request closeRequest) (ref.RoomID, error) {
	switch {
	case request.Room != "" && request.User != "":
		return ref.RoomID{}, fmt.Errorf("give either room or user, not both")
	case request.Room != "":
		return ref.ParseRoomID(request.Room)
	case request.User != "":
		user, err := ref.ParseUserID(request.User)
		if err != nil {
			return ref.RoomID{}, err
		}
		room, open := rs.store.UserRoom(user)
		if !open {
			return ref.RoomID{}, fmt.Errorf("%s has no open ticket", user)
		}
		return room, nil
	default:
		return ref.RoomID{}, fmt.Errorf("missing required field: room or user")
	}
}

// snapshotResponse mirrors the on-disk ticket snapshot.
type snapshotResponse struct {
	Tickets        map[string]string `cbor:"tickets"`
	ChannelToUser  map[string]string `cbor:"channel_to_user"`
	ChannelService map[string]string `cbor:"channel_service"`
}

func (rs *RelayService) handleSnapshot(ctx context.Context, raw []byte) (any, error) {
	tickets, channelToUser, channelService := rs.store.Snapshot()
	return snapshotResponse{
		Tickets:        tickets,
		ChannelToUser:  channelToUser,
		ChannelService: channelService,
	}, nil
}
