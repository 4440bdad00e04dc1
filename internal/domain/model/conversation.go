package model

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type ConversationMember struct {
	ConversationID string     `json:"conversationId"`
	ProfileID      string     `json:"profileId"`
	Role           MemberRole `json:"role"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Conversation is read-only to the worker apart from seeding.
type Conversation struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Members   []ConversationMember `json:"members"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func NewConversation(id, title string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
}
