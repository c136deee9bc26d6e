package store

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound indicates no entry exists for the requested question key.
var ErrNotFound = errors.New("knowledge entry not found")

// Entry is one knowledge record. The normalized question text is the unique
// key; created-* fields are set once, modified-* on every write.
type Entry struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Weight     float64   `json:"weight"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`
}

// Normalize canonicalizes a question for use as a store key: lowercased,
// whitespace collapsed, trimmed. Near-duplicate phrasings that differ only
// in case or spacing map to the same entry.
func Normalize(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}
