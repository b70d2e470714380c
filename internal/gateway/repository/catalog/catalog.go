// Package catalog serves the searchable option records behind /api/search.
package catalog

import (
	"context"
	"errors"
	"strings"
)

// Entry is one searchable record.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Source answers substring searches over entry names. total counts every
// match, not just the returned page.
type Source interface {
	Search(ctx context.Context, query string, limit int) (entries []Entry, total int, err error)
	Get(ctx context.Context, id string) (Entry, error)
}

// Writer is implemented by sources that accept new entries.
type Writer interface {
	Upsert(ctx context.Context, entries ...Entry) error
}

var ErrNotFound = errors.New("catalog entry not found")

func normalizeEntry(e Entry) (Entry, bool) {
	e.ID = strings.TrimSpace(e.ID)
	e.Name = strings.TrimSpace(e.Name)
	e.Description = strings.TrimSpace(e.Description)
	if e.ID == "" || e.Name == "" {
		return Entry{}, false
	}
	return e, true
}

// DefaultEntries seeds the in-memory catalog.
func DefaultEntries() []Entry {
	return []Entry{
		{ID: "1", Name: "Anna Smith", Description: "Sales"},
		{ID: "2", Name: "John Carter", Description: "Support"},
		{ID: "3", Name: "Joanna Lee", Description: "Engineering"},
		{ID: "4", Name: "Johnny Walker", Description: "Operations"},
		{ID: "5", Name: "Mark Jones", Description: "Finance"},
		{ID: "6", Name: "Maria Garcia", Description: "Legal"},
		{ID: "7", Name: "Peter Novak", Description: "Engineering"},
		{ID: "8", Name: "Priya Patel", Description: "Product"},
		{ID: "9", Name: "Jonas Berg", Description: "Design"},
		{ID: "10", Name: "Liam O'Brien", Description: "Support"},
	}
}
