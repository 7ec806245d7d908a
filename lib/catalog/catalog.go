// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog provides parsing and validation for the orderable
// service catalog.
//
// The catalog is authored on disk as a JSONC file (JSON extended with
// comments and trailing commas), conventionally services.jsonc. Each
// entry defines one orderable service: a code the user types after
// !order, a display name and blurb for the menu, and the prompt
// sequence the intake flow walks through.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Catalog
//  2. Validate: structural checks (unique codes, non-empty questions,
//     sane timeouts)
//  3. ByCode / Services: lookup during !order handling
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Prompt timeout bounds in seconds. Authored values outside the range
// are clamped rather than rejected: an over-generous timeout becomes
// the maximum, a too-eager one the minimum. A zero (unset) value gets
// the default.
const (
	minPromptTimeoutSeconds     = 120
	maxPromptTimeoutSeconds     = 300
	defaultPromptTimeoutSeconds = 180
)

// Catalog is the set of orderable services.
type Catalog struct {
	Services []Service `json:"services"`
}

// Service is one orderable service.
type Service struct {
	// Code is what the user types after !order. Validated as a
	// service code (lowercase letters, digits, hyphens).
	Code string `json:"code"`

	// Name is the display name shown in the order menu.
	Name string `json:"name"`

	// Blurb is a one-line description shown next to the name.
	Blurb string `json:"blurb,omitempty"`

	// Prompts are asked in order during intake. Empty is allowed: the
	// ticket is opened with no collected details.
	Prompts []Prompt `json:"prompts,omitempty"`
}

// Prompt is one question in an intake flow.
type Prompt struct {
	// Key labels the answer in the ticket's details summary.
	Key string `json:"key"`

	// Question is sent to the user verbatim.
	Question string `json:"question"`

	// TimeoutSeconds bounds how long intake waits for the reply.
	// Clamped to [120, 300]; zero means the default (180).
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Timeout returns the effective reply timeout, clamped to the allowed
// range.
func (p Prompt) Timeout() time.Duration {
	seconds := p.TimeoutSeconds
	switch {
	case seconds == 0:
		seconds = defaultPromptTimeoutSeconds
	case seconds < minPromptTimeoutSeconds:
		seconds = minPromptTimeoutSeconds
	case seconds > maxPromptTimeoutSeconds:
		seconds = maxPromptTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Catalog.
func Parse(data []byte) (*Catalog, error) {
	stripped := jsonc.ToJSON(data)

	var cat Catalog
	if err := json.Unmarshal(stripped, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	return &cat, nil
}

// ReadFile reads a JSONC catalog file from disk and parses it.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cat, nil
}

// ByCode returns the service with the given code.
func (c *Catalog) ByCode(code string) (Service, bool) {
	for _, service := range c.Services {
		if service.Code == code {
			return service, true
		}
	}
	return Service{}, false
}
