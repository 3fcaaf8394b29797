// Bulk read/replace used by the backup codec.

package keepsake

import (
	"context"
	"slices"

	"github.com/keepsakelab/giftbox/internal/recordstore"
)

// State is a copy of everything the record store holds, in stored order.
type State struct {
	Settings Settings
	Jar      []JarNote
	Museum   []Entry
	Journal  []Entry
	Messages []Message
}

// Snapshot returns a copy of the current state.
func (r *Repository) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return State{
		Settings: r.settings,
		Jar:      slices.Clone(r.jar),
		Museum:   cloneEntries(r.museum),
		Journal:  cloneEntries(r.journal),
		Messages: cloneMessages(r.messages),
	}
}

// ReplaceAll overwrites settings and every collection wholesale. Used by
// backup import: the incoming state replaces, never merges. Writes happen
// key by key; there is no cross-key transaction.
func (r *Repository) ReplaceAll(ctx context.Context, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Settings.normalize()
	if s.Jar == nil {
		s.Jar = []JarNote{}
	}
	for i := range s.Museum {
		s.Museum[i].normalize()
	}
	for i := range s.Journal {
		s.Journal[i].normalize()
	}
	for i := range s.Messages {
		s.Messages[i].normalize()
	}

	if err := r.records.Set(recordstore.KeySettings, &s.Settings); err != nil {
		return err
	}
	if err := r.records.Set(recordstore.KeyJar, s.Jar); err != nil {
		return err
	}
	if err := r.records.Set(recordstore.KeyMuseum, s.Museum); err != nil {
		return err
	}
	if err := r.records.Set(recordstore.KeyJournal, s.Journal); err != nil {
		return err
	}
	if err := r.records.Set(recordstore.KeyMessages, s.Messages); err != nil {
		return err
	}

	r.settings = s.Settings
	r.jar = s.Jar
	r.museum = s.Museum
	r.journal = s.Journal
	r.messages = s.Messages
	r.record(ctx, "import backup")
	return nil
}

// ReferencedPhotoIDs returns the union of photo ids referenced by museum,
// journal and message entries, deduplicated, in first-reference order.
func (r *Repository) ReferencedPhotoIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	add := func(photoIDs []string) {
		for _, id := range photoIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	for i := range r.museum {
		add(r.museum[i].PhotoIDs)
	}
	for i := range r.journal {
		add(r.journal[i].PhotoIDs)
	}
	for i := range r.messages {
		add(r.messages[i].PhotoIDs)
	}
	return ids
}

func cloneEntries(entries []Entry) []Entry {
	out := slices.Clone(entries)
	for i := range out {
		out[i].PhotoIDs = slices.Clone(out[i].PhotoIDs)
	}
	return out
}

func cloneMessages(msgs []Message) []Message {
	out := slices.Clone(msgs)
	for i := range out {
		out[i].PhotoIDs = slices.Clone(out[i].PhotoIDs)
	}
	return out
}
