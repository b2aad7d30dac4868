package models

// ChatMessage represents a single user/assistant exchange entry rendered by
// the transcript UI.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}
