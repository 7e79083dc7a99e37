package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that owns a namespace of entries.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}
