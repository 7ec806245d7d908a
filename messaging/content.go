// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// MessageContent is the content body of a Matrix message event
// (m.room.message). Relayed messages carry plain text in Body; formatted
// announcements additionally set Format and FormattedBody. File and image
// messages set URL to the MXC URI of the uploaded content and describe it
// in Info.
type MessageContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	URL           string     `json:"url,omitempty"`
	Filename      string     `json:"filename,omitempty"`
	Info          *FileInfo  `json:"info,omitempty"`
	RelatesTo     *RelatesTo `json:"m.relates_to,omitempty"`
}

// FileInfo describes uploaded media attached to a message.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RelatesTo expresses a relationship between events. Frontdesk uses it
// for reaction annotations (rel_type "m.annotation" with the emoji in
// Key) when acknowledging staff close requests.
type RelatesTo struct {
	RelType string      `json:"rel_type"`
	EventID ref.EventID `json:"event_id"`
	Key     string      `json:"key,omitempty"`
}

// ReactionContent is the content body of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewNotice creates an m.notice message. Notices are the conventional
// message type for bot-originated text: clients render them without
// triggering notification sounds, and well-behaved bots never respond
// to them, which prevents relay loops.
func NewNotice(body string) MessageContent {
	return MessageContent{
		MsgType: "m.notice",
		Body:    body,
	}
}

// NewHTMLNotice creates an m.notice message with an HTML-formatted body.
// The plain body is the fallback for clients that don't render HTML.
func NewHTMLNotice(body, formattedBody string) MessageContent {
	return MessageContent{
		MsgType:       "m.notice",
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: formattedBody,
	}
}

// NewFileMessage creates an m.file message referencing uploaded media.
// filename becomes both the display body and the suggested download name.
func NewFileMessage(filename, mxcURI, mimeType string, size int64) MessageContent {
	return MessageContent{
		MsgType:  "m.file",
		Body:     filename,
		Filename: filename,
		URL:      mxcURI,
		Info:     &FileInfo{MimeType: mimeType, Size: size},
	}
}

// NewImageMessage creates an m.image message referencing uploaded media.
func NewImageMessage(filename, mxcURI, mimeType string, size int64) MessageContent {
	return MessageContent{
		MsgType: "m.image",
		Body:    filename,
		URL:     mxcURI,
		Info:    &FileInfo{MimeType: mimeType, Size: size},
	}
}

// NewReaction creates the content for an m.reaction event annotating the
// target event with the given key (typically a single emoji).
func NewReaction(target ref.EventID, key string) ReactionContent {
	return ReactionContent{
		RelatesTo: RelatesTo{
			RelType: "m.annotation",
			EventID: target,
			Key:     key,
		},
	}
}
