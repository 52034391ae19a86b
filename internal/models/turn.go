package models

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Scope filters conversation history. The empty scope means every turn.
type Scope string

// Turn is one persisted message of a conversation. Turns are never updated.
type Turn struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    *string   `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
}

// HistoryEntry is the role/content projection used to seed a model session.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
