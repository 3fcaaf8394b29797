// Search and ordering rules for entry listings.

package keepsake

import (
	"math/rand/v2"
	"slices"
	"strings"
)

// missingDate sorts entries without a date as earliest.
const missingDate = "0000-00-00"

// matches reports whether the query hits the entry's title, text or date.
// Matching is a case-insensitive substring test; an empty query matches all.
func matches(e *Entry, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(e.Title), q) ||
		strings.Contains(strings.ToLower(e.Text), q) ||
		strings.Contains(strings.ToLower(e.Date), q)
}

// filterEntries returns copies of the entries matching query.
func filterEntries(entries []Entry, query string) []Entry {
	query = strings.TrimSpace(query)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if matches(&e, query) {
			e.PhotoIDs = slices.Clone(e.PhotoIDs)
			out = append(out, e)
		}
	}
	return out
}

// sortEntries orders entries in place. The journal sorts by date in the
// requested direction (ISO dates compare lexicographically; a missing date
// sorts earliest). The museum always sorts by most recently updated, falling
// back to createdAt.
func sortEntries(entries []Entry, col Collection, mode SortMode) {
	if col == Museum {
		slices.SortStableFunc(entries, func(a, b Entry) int {
			return strings.Compare(touchedAt(&b), touchedAt(&a))
		})
		return
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		ad, bd := a.Date, b.Date
		if ad == "" {
			ad = missingDate
		}
		if bd == "" {
			bd = missingDate
		}
		if mode == SortAsc {
			return strings.Compare(ad, bd)
		}
		return strings.Compare(bd, ad)
	})
}

func touchedAt(e *Entry) string {
	if e.UpdatedAt != "" {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

func randIndex(n int) int {
	return rand.IntN(n)
}
