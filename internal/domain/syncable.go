package domain

import "time"

// Timestamps records when a stored entity was created and last changed.
// Embedded in every persisted domain type.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp to the current time.
// Call this whenever the underlying entity changes.
func (t *Timestamps) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
// Call this when creating a new entity.
func (t *Timestamps) InitTimestamps() {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}
