// Package domain contains core concepts of the chat system.
// This file defines ChatMessage records.
// Messages are immutable once appended to a session log.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage represents an immutable relayed message.
type ChatMessage struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	SenderID    string
	RecipientID string
	Content     string
	SentAt      time.Time
}

func NewChatMessage(session Session, senderID, content string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:          uuid.New(),
		SessionID:   session.ID,
		SenderID:    senderID,
		RecipientID: session.PartnerOf(senderID),
		Content:     content,
		SentAt:      at,
	}
}
