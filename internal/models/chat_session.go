package models

import "time"

// ChatSession persists one conversation with the assistant, including the
// raw LLM history (for provider context restore) and the user-facing chat
// messages (for rendering the transcript after a restart).
type ChatSession struct {
	ID               uint   `gorm:"primaryKey"`
	Title            string `gorm:"size:255;not null"`
	Provider         string `gorm:"size:50"`
	ModelKey         string `gorm:"size:255"`
	MessagesJSON     string `gorm:"type:text"`
	ChatMessagesJSON string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
