package model

import "time"

// Meta is embedded by every stored document.
type Meta struct {
	Version   int64     `json:"version" firestore:"version"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// Touch stamps the document as written at now.
func (m *Meta) Touch(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

type AppError string

func (e AppError) Error() string { return string(e) }

const (
	ErrNotFound = AppError("NOT_FOUND")
	ErrConflict = AppError("VERSION_CONFLICT")
)
