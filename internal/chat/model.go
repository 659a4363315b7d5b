// Package chat owns the message lifecycle: every create, edit, soft-delete
// and read receipt goes through Manager, which validates, persists through
// the Store collaborator and broadcasts to the conversation's room.
package chat

import (
	"fmt"
	"slices"
	"time"
)

// DeletedPlaceholder replaces the text of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

// Kind distinguishes one-to-one conversations from groups.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Actor is a registered user. The core only writes LastSeen.
type Actor struct {
	ID          string     `json:"id" yaml:"id"`
	DisplayName string     `json:"displayName" yaml:"displayName"`
	Username    string     `json:"username" yaml:"username"`
	AvatarURL   string     `json:"avatarUrl,omitempty" yaml:"avatarUrl"`
	LastSeen    *time.Time `json:"lastSeen,omitempty" yaml:"-"`
}

// Profile is the display subset of an Actor denormalized onto messages.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Profile returns the display attributes of a.
func (a Actor) Profile() *Profile {
	return &Profile{ID: a.ID, DisplayName: a.DisplayName, Username: a.Username, AvatarURL: a.AvatarURL}
}

// Conversation is a direct chat or a group.
type Conversation struct {
	ID             string    `json:"id" yaml:"id"`
	Kind           Kind      `json:"kind" yaml:"kind"`
	Name           string    `json:"name,omitempty" yaml:"name"`
	Members        []string  `json:"members" yaml:"members"`
	Admins         []string  `json:"admins" yaml:"admins"`
	LastActivityAt time.Time `json:"lastActivityAt" yaml:"-"`
	CreatedAt      time.Time `json:"createdAt" yaml:"-"`
}

// HasMember reports whether actorID belongs to the conversation.
func (c *Conversation) HasMember(actorID string) bool {
	return slices.Contains(c.Members, actorID)
}

// Validate checks the structural invariants: a direct conversation has
// exactly two distinct members and no admins; a group has at least one
// admin and every admin is a member.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		if m == "" {
			return fmt.Errorf("%w: conversation %s has an empty member id", ErrInvalidArgument, c.ID)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: conversation %s lists member %s twice", ErrInvalidArgument, c.ID, m)
		}
		seen[m] = struct{}{}
	}

	switch c.Kind {
	case KindDirect:
		if len(c.Members) != 2 {
			return fmt.Errorf("%w: direct conversation %s needs exactly two members, has %d", ErrInvalidArgument, c.ID, len(c.Members))
		}
		if len(c.Admins) != 0 {
			return fmt.Errorf("%w: direct conversation %s cannot have admins", ErrInvalidArgument, c.ID)
		}
	case KindGroup:
		if len(c.Admins) == 0 {
			return fmt.Errorf("%w: group %s needs at least one admin", ErrInvalidArgument, c.ID)
		}
		for _, a := range c.Admins {
			if _, ok := seen[a]; !ok {
				return fmt.Errorf("%w: admin %s of group %s is not a member", ErrInvalidArgument, a, c.ID)
			}
		}
	default:
		return fmt.Errorf("%w: unknown conversation kind %q", ErrInvalidArgument, c.Kind)
	}
	return nil
}

// Message is one entry of a conversation. CreatedAt is its ordering key.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Sender         *Profile   `json:"sender,omitempty"`
	Text           string     `json:"text"`
	IsDeleted      bool       `json:"isDeleted"`
	ReadBy         []string   `json:"readBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

// MarkReadBy adds actorID to ReadBy and reports whether it was missing.
// ReadBy never shrinks.
func (m *Message) MarkReadBy(actorID string) bool {
	if slices.Contains(m.ReadBy, actorID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, actorID)
	return true
}

// NewMessage holds the fields the store needs to persist a message. The
// store assigns ID and CreatedAt.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Text           string
	ReadBy         []string
}

// MessagePatch lists the mutable message fields; nil means unchanged.
type MessagePatch struct {
	Text      *string
	IsDeleted *bool
	EditedAt  *time.Time
}

// Apply writes the non-nil patch fields onto m.
func (p MessagePatch) Apply(m *Message) {
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.IsDeleted != nil {
		m.IsDeleted = *p.IsDeleted
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		m.EditedAt = &t
	}
}

// ConversationPatch lists the conversation fields the core may change.
type ConversationPatch struct {
	LastActivityAt *time.Time
}

// Apply writes the non-nil patch fields onto c.
func (p ConversationPatch) Apply(c *Conversation) {
	if p.LastActivityAt != nil {
		c.LastActivityAt = *p.LastActivityAt
	}
}
