// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// Validate checks a Catalog for structural issues. Returns a list of
// human-readable issue descriptions; an empty list means the catalog
// is valid.
//
// Structural checks:
//   - At least one service is required
//   - Each code must be a valid service code and unique
//   - Each service must have a non-empty display name
//   - Prompt keys must be non-empty and unique within a service
//   - Prompt questions must be non-empty
//   - Negative timeouts are rejected (out-of-range positives clamp)
func Validate(cat *Catalog) []string {
	var issues []string

	if len(cat.Services) == 0 {
		issues = append(issues, "catalog has no services (at least one is required)")
	}

	codes := make(map[string]int, len(cat.Services))
	for index, service := range cat.Services {
		prefix := fmt.Sprintf("services[%d]", index)

		if _, err := ref.ParseServiceCode(service.Code); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", prefix, err))
		} else {
			prefix = fmt.Sprintf("%s %q", prefix, service.Code)
			if firstIndex, exists := codes[service.Code]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s: duplicate code (first used at services[%d])",
					prefix, firstIndex,
				))
			} else {
				codes[service.Code] = index
			}
		}

		if service.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
		}

		keys := make(map[string]int, len(service.Prompts))
		for promptIndex, prompt := range service.Prompts {
			promptPrefix := fmt.Sprintf("%s prompts[%d]", prefix, promptIndex)

			if prompt.Key == "" {
				issues = append(issues, fmt.Sprintf("%s: key is required", promptPrefix))
			} else if firstIndex, exists := keys[prompt.Key]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s: duplicate key %q (first used at prompts[%d])",
					promptPrefix, prompt.Key, firstIndex,
				))
			} else {
				keys[prompt.Key] = promptIndex
			}

			if prompt.Question == "" {
				issues = append(issues, fmt.Sprintf("%s: question is required", promptPrefix))
			}

			if prompt.TimeoutSeconds < 0 {
				issues = append(issues, fmt.Sprintf(
					"%s: timeout_seconds must not be negative, got %d",
					promptPrefix, prompt.TimeoutSeconds,
				))
			}
		}
	}

	return issues
}
