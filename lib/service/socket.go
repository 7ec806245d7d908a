// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/codec"
	"github.com/bureau-foundation/frontdesk/lib/netutil"
)

// ActionFunc handles one admin-socket action. It receives the full
// CBOR request (including the routing "action" field) and decodes
// whatever action-specific fields it needs from it.
//
// The returned value becomes the "data" field of the success
// response; nil produces a bare {ok: true}. A returned error turns
// into a failure response carrying the error text.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the CBOR envelope for every admin-socket reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer runs the admin socket: a Unix socket speaking a
// one-shot CBOR request-response protocol. A client connects, writes
// one CBOR request, reads one CBOR response, and the connection is
// done. CBOR is self-delimiting, so there is no framing beyond that.
//
// The socket file sits inside the service's 0700 state directory.
// Being able to open it is the whole access-control story; the
// protocol itself carries no credentials.
type SocketServer struct {
	path    string
	actions map[string]ActionFunc
	logger  *slog.Logger

	// inflight counts connections being served. Serve waits for it
	// to drain after the listener closes, so shutdown never cuts off
	// a half-written response.
	inflight sync.WaitGroup
}

// NewSocketServer creates a server for the given socket path.
// Register actions with Handle, then call Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		path:    socketPath,
		actions: make(map[string]ActionFunc),
		logger:  logger,
	}
}

// Handle registers the handler for an action name. Registering the
// same name twice is a programming error and panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.actions[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.actions[action] = handler
}

// Serve listens on the socket and dispatches requests until ctx is
// cancelled, then waits for in-flight handlers before returning.
//
// A stale socket file from a previous run is removed before
// listening, and the live one is removed on the way out.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.path)
	}()

	// Accept has no context form; closing the listener is how the
	// cancellation reaches it.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("admin socket listening", "path", s.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				break
			}
			s.logger.Error("socket accept", "error", err)
			continue
		}

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}

	s.inflight.Wait()
	return nil
}

// requestReadTimeout bounds how long a client may take to send its
// request. A healthy client writes immediately after connecting.
const requestReadTimeout = 30 * time.Second

// responseWriteTimeout bounds writing the response back.
const responseWriteTimeout = 10 * time.Second

// requestSizeLimit caps a single request. The largest real request is
// a close with a reason string, so 1 MB is far beyond anything
// legitimate.
const requestSizeLimit = 1024 * 1024

// serveConn runs one request-response cycle.
func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, requestSizeLimit)).Decode(&raw); err != nil {
		if netutil.IsExpectedCloseError(err) {
			// Client connected but sent nothing. Probe dials do
			// this to check whether the service is up.
			return
		}
		s.respondError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.respondError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.respondError(conn, "missing required field: action")
		return
	}

	handler, known := s.actions[header.Action]
	if !known {
		s.respondError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action returned error", "action", header.Action, "error", err)
		s.respondError(conn, err.Error())
		return
	}
	s.respond(conn, result)
}

// respond writes a success response, with result marshaled into the
// data field when non-nil.
func (s *SocketServer) respond(conn net.Conn, result any) {
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.respondError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	s.write(conn, response)
}

// respondError writes a failure response carrying the message.
func (s *SocketServer) respondError(conn net.Conn, message string) {
	s.write(conn, Response{OK: false, Error: message})
}

// write encodes the response onto the connection. Failures are logged
// at debug only: the connection closes either way, and the client
// seeing a short read is the client's problem to retry.
func (s *SocketServer) write(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(responseWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}
