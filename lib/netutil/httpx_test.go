// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

// brokenReader fails every Read.
type brokenReader struct{}

func (*brokenReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}

func TestReadResponse(t *testing.T) {
	body := `{"next_batch":"s72"}`
	got, err := ReadResponse(bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(got) != body {
		t.Fatalf("body = %q, want %q", got, body)
	}
}

func TestReadResponseEmpty(t *testing.T) {
	got, err := ReadResponse(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("body = %q, want empty", got)
	}
}

func TestReadResponseFailure(t *testing.T) {
	if _, err := ReadResponse(&brokenReader{}); err == nil {
		t.Fatal("ReadResponse swallowed a read error")
	}
}

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		want string
	}{
		{"json error body", bytes.NewReader([]byte(`{"errcode":"M_FORBIDDEN"}`)), `{"errcode":"M_FORBIDDEN"}`},
		{"empty body", bytes.NewReader(nil), ""},
		{"read failure", &brokenReader{}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ErrorBody(test.body); got != test.want {
				t.Errorf("ErrorBody = %q, want %q", got, test.want)
			}
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EOF", io.EOF, true},
		{"net.ErrClosed", net.ErrClosed, true},
		{"wrapped EOF", fmt.Errorf("read frame: %w", io.EOF), true},
		{"EPIPE", syscall.EPIPE, true},
		{"ECONNRESET", &net.OpError{Op: "write", Err: syscall.ECONNRESET}, true},
		{"unrelated errno", syscall.ENOSPC, false},
		{"plain error", fmt.Errorf("decode request"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}
