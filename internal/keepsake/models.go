// Defines the record types stored by the keepsake repository.
//
// All types are plain JSON documents. There is no schema enforcement beyond
// normalization: malformed or legacy documents are fixed up once at load time
// by the normalize methods instead of being re-checked at every use site.

package keepsake

import (
	"time"

	"github.com/maruel/ksid"
)

// Collection names an entry collection.
type Collection string

const (
	// Museum holds long-lived memories, always sorted by recency of update.
	Museum Collection = "museum"
	// Journal holds dated entries, sortable by date in either direction.
	Journal Collection = "journal"
)

// SortMode orders journal listings by date.
type SortMode string

const (
	SortAsc  SortMode = "asc"
	SortDesc SortMode = "desc"
)

// Settings is the singleton app configuration record.
type Settings struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	ToWhatsapp string `json:"toWhatsapp"`
	ToEmail    string `json:"toEmail"`
}

func (s *Settings) normalize() {
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if s.Subtitle == "" {
		s.Subtitle = DefaultSubtitle
	}
}

// JarNote is one note in the jar. Notes are created and deleted, never edited.
type JarNote struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// Entry is one museum or journal entry.
type Entry struct {
	ID        string   `json:"id"`
	Date      string   `json:"date"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	PhotoIDs  []string `json:"photoIds"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func (e *Entry) normalize() {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.PhotoIDs == nil {
		e.PhotoIDs = []string{}
	}
	if e.UpdatedAt == "" {
		e.UpdatedAt = e.CreatedAt
	}
}

// Message is one composed outbound message, kept locally.
type Message struct {
	ID        string   `json:"id"`
	From      string   `json:"from"`
	Text      string   `json:"text"`
	PhotoIDs  []string `json:"photoIds"`
	CreatedAt string   `json:"createdAt"`
}

func (m *Message) normalize() {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.PhotoIDs == nil {
		m.PhotoIDs = []string{}
	}
}

// MicroNote is the single "one good thing today" record.
type MicroNote struct {
	Text string `json:"text"`
	At   string `json:"at"`
}

// EntryFields carries the caller-supplied fields of a create or update.
// On update, Date/Title/Text/PhotoIDs fully replace the stored values.
type EntryFields struct {
	Date     string
	Title    string
	Text     string
	PhotoIDs []string
}

// newID generates a fresh time-sortable id.
func newID() string {
	return ksid.NewID().String()
}

// nowISO formats t the way the interchange format expects timestamps:
// RFC 3339 UTC with millisecond precision.
func nowISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// dayISO formats t as a YYYY-MM-DD date string.
func dayISO(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
