package domain

import "time"

// Document carries the id and timestamps of every stored entity.
type Document struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch marks the document modified now.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().UTC()
}

// InitTimestamps stamps a new document.
func (d *Document) InitTimestamps() {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
}
