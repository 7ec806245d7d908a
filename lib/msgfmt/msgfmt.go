// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package msgfmt renders markdown to the HTML dialect Matrix clients
// display for formatted_body content.
//
// Announcements the service authors (welcome notices, order menus,
// intake summaries, closure entries) are written as markdown and
// rendered here; the markdown source itself travels as the plain-text
// body fallback. Relayed user traffic never passes through this
// package, it is forwarded verbatim.
package msgfmt

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// markdownInstance is initialized once and reused. The configuration
// (extensions, renderer options) never changes and the goldmark
// Markdown is safe to share; actual parsing creates per-call state
// inside Convert.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		)
	})
	return markdownInstance
}

// Render converts markdown to HTML for a message's formatted_body.
// Single newlines become <br /> so authored line breaks survive the
// way they do for typed chat input. Raw HTML in the source is omitted
// rather than passed through: rendered announcements embed
// user-supplied strings (intake answers, display names) and those
// must never inject markup.
func Render(markdown string) string {
	var buffer strings.Builder
	// Convert reports writer errors only; strings.Builder cannot fail.
	_ = getMarkdown().Convert([]byte(markdown), &buffer)
	return strings.TrimRight(buffer.String(), "\n")
}
