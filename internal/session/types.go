package session

import (
	"time"

	"github.com/google/uuid"
)

// Message roles as stored in session_messages.role.
// They mirror the role names used by the model provider so history can be
// replayed into a generation request without translation tables.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Session is one conversation context: an identifier plus ordered history.
type Session struct {
	ID           uuid.UUID `json:"id"`
	ModelName    string    `json:"model_name,omitempty"`
	MessageCount int32     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single turn in a session.
// Sequence numbers are dense and strictly increasing within a session.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Sequence  int32     `json:"sequence_number"`
	CreatedAt time.Time `json:"created_at"`
}
