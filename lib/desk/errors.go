// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/frontdesk/lib/provision"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// Kind classifies a failed desk operation. Callers branch on it to
// choose the user-visible decline: a permission problem is an operator
// misconfiguration and is never retried, a vanished room triggers
// mapping cleanup, a transcript failure aborts a close.
type Kind int

const (
	// KindPlatform is an uncategorized homeserver failure.
	KindPlatform Kind = iota

	// KindPermissionDenied means the service account lacks the power
	// to perform the operation.
	KindPermissionDenied

	// KindNotFound means a referenced user or room vanished.
	KindNotFound

	// KindTimeout means a bounded wait for user input expired.
	KindTimeout

	// KindTranscript means history reading or transcript writing failed.
	KindTranscript
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission-denied"
	case KindNotFound:
		return "not-found"
	case KindTimeout:
		return "timeout"
	case KindTranscript:
		return "transcript"
	default:
		return "platform"
	}
}

// OpError wraps a desk operation failure with the operation name and a
// Kind the caller can branch on without string matching.
type OpError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// opError builds an *OpError for the given operation.
func opError(op string, kind Kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// kindOf maps a messaging-boundary error onto a Kind. Anything not
// specifically recognized is a platform failure.
func kindOf(err error) Kind {
	switch {
	case errors.Is(err, provision.ErrForbidden), messaging.IsForbidden(err):
		return KindPermissionDenied
	case messaging.IsNotFound(err):
		return KindNotFound
	default:
		return KindPlatform
	}
}

// TicketExistsError reports a ticket creation attempt for a user who
// already has one open. The existing room travels with the error so
// callers can point the user at it instead of failing opaquely.
type TicketExistsError struct {
	User ref.UserID
	Room ref.RoomID
}

func (e *TicketExistsError) Error() string {
	return fmt.Sprintf("%s already has an open ticket in %s", e.User, e.Room)
}
