package model

import "github.com/google/uuid"

// NewMessageID mints a time-ordered UUIDv7 for a message envelope, so
// trace streams can be correlated and sorted by id without a counter
// shared across layers. Falls back to v4 if v7 generation fails.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
