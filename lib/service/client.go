// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/codec"
)

// connectTimeout bounds the connect phase of a call. The server's own
// read and write deadlines take over once the connection is up.
const connectTimeout = 5 * time.Second

// responseReadTimeout is how long a call waits for the response after
// the request is written. Sized to the server's read and write
// deadlines combined, since a close action does real Matrix work
// before replying.
const responseReadTimeout = 45 * time.Second

// responseSizeLimit caps a response, mirroring the server's request
// cap.
const responseSizeLimit = 1024 * 1024

// ServiceError is the failure a Call returns when the service itself
// rejected the action. Transport and decoding problems come back as
// plain errors instead, so callers can tell "the service said no"
// from "the service is unreachable".
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("action %q refused: %s", e.Action, e.Message)
}

// ServiceClient is the calling side of the admin socket. Every Call
// dials a fresh connection, mirroring the server's one request per
// connection model, so the zero-value-plus-path client has no state
// to manage and no connection to leak.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient creates a client for the admin socket at
// socketPath. Opening the socket is the only credential; there is
// nothing else to configure.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// Call invokes an action and decodes its response.
//
// fields carries the action-specific request fields; nil is fine for
// actions without any. The "action" key is added here and must not
// appear in fields. When the response carries data and result is
// non-nil, the data is CBOR-decoded into result.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.roundTrip(ctx, request)
	if err != nil {
		return fmt.Errorf("action %q via %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response payload: %w", action, err)
		}
	}
	return nil
}

// roundTrip performs one connect-write-read cycle.
func (c *ServiceClient) roundTrip(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing admin socket: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	// Half-close so the server's read side sees a clean EOF. Not
	// required by the protocol; CBOR delimits itself.
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, responseSizeLimit)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
