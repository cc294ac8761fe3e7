// Package domain contains core concepts of the community chat system.
// This file defines Message records and send requests.
// Messages are immutable once created; no transport or UI logic belongs here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommunityID identifies a community channel, e.g. "cs-101".
// At most one community is active per connection.
type CommunityID string

// Message represents an immutable chat record relayed by the server.
// ID and timestamps are server-assigned; clients never mutate a Message
// after receiving it.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	CommunityID CommunityID `json:"community_id"`
	AuthorID    string      `json:"author_id"`
	DisplayName string      `json:"display_name"`
	Text        string      `json:"text,omitempty"`
	Images      []string    `json:"images,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SendRequest carries user-entered content toward the transport.
// It lives for the duration of one dispatch call; the server assigns
// the ID and timestamps on acceptance.
type SendRequest struct {
	CommunityID CommunityID `json:"community_id" validate:"required"`
	AuthorID    string      `json:"author_id" validate:"required"`
	DisplayName string      `json:"display_name" validate:"required"`
	Text        string      `json:"text,omitempty" validate:"required_without=Images"`
	Images      []string    `json:"images,omitempty" validate:"omitempty,dive,uri"`
}
