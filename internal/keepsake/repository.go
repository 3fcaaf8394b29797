// Package keepsake implements the domain operations over the jar, museum,
// journal and message collections.
//
// The Repository owns all collections. They are loaded once from the record
// store, held in memory as the single source of truth for rendering, and
// every mutation funnels through a Repository method so the invariants
// (cascade delete, full re-persist on write, photo-before-record ordering)
// cannot be bypassed.
package keepsake

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/keepsakelab/giftbox/internal/blobstore"
	"github.com/keepsakelab/giftbox/internal/imaging"
	"github.com/keepsakelab/giftbox/internal/recordstore"
)

// Historian records a snapshot of the record directory after a mutation.
// Implementations must never fail the mutation; errors are theirs to log.
type Historian interface {
	Record(ctx context.Context, message string)
}

// Repository owns the in-memory collections and their persistence.
type Repository struct {
	records *recordstore.Store
	blobs   *blobstore.Store
	hist    Historian // may be nil

	mu       sync.RWMutex
	settings Settings
	jar      []JarNote
	museum   []Entry
	journal  []Entry
	messages []Message

	now func() time.Time
}

// New loads all collections from records, filling in built-in defaults for
// anything missing or corrupt. hist may be nil to disable history.
func New(records *recordstore.Store, blobs *blobstore.Store, hist Historian) *Repository {
	r := &Repository{
		records: records,
		blobs:   blobs,
		hist:    hist,
		now:     time.Now,
	}
	r.load()
	return r
}

// load populates the in-memory collections, normalizing every record.
func (r *Repository) load() {
	now := r.now()

	var s Settings
	if r.records.Get(recordstore.KeySettings, &s) {
		s.normalize()
		r.settings = s
	} else {
		r.settings = defaultSettings()
	}
	if !r.records.Get(recordstore.KeyJar, &r.jar) {
		r.jar = defaultJar(now)
	}
	if !r.records.Get(recordstore.KeyMuseum, &r.museum) {
		r.museum = defaultMuseum(now)
	}
	if !r.records.Get(recordstore.KeyJournal, &r.journal) {
		r.journal = defaultJournal(now)
	}
	if !r.records.Get(recordstore.KeyMessages, &r.messages) {
		r.messages = []Message{}
	}
	for i := range r.museum {
		r.museum[i].normalize()
	}
	for i := range r.journal {
		r.journal[i].normalize()
	}
	for i := range r.messages {
		r.messages[i].normalize()
	}
}

func (r *Repository) record(ctx context.Context, message string) {
	if r.hist != nil {
		r.hist.Record(ctx, message)
	}
}

// Settings returns a copy of the current settings.
func (r *Repository) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings replaces the settings record. Blank title or subtitle reset
// to the built-in defaults.
func (r *Repository) UpdateSettings(ctx context.Context, s Settings) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Title = strings.TrimSpace(s.Title)
	s.Subtitle = strings.TrimSpace(s.Subtitle)
	s.ToWhatsapp = strings.TrimSpace(s.ToWhatsapp)
	s.ToEmail = strings.TrimSpace(s.ToEmail)
	s.normalize()
	if err := r.records.Set(recordstore.KeySettings, &s); err != nil {
		return r.settings, err
	}
	r.settings = s
	r.record(ctx, "update settings")
	return s, nil
}

// Notes returns the jar notes, most recently created first.
func (r *Repository) Notes() []JarNote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	notes := slices.Clone(r.jar)
	slices.SortStableFunc(notes, func(a, b JarNote) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	return notes
}

// RandomNote picks a random jar note for the "today" view.
// Returns false when the jar is empty.
func (r *Repository) RandomNote() (JarNote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.jar) == 0 {
		return JarNote{}, false
	}
	return r.jar[randIndex(len(r.jar))], true
}

// AddNote prepends a note to the jar. Blank text is a silent no-op.
func (r *Repository) AddNote(ctx context.Context, text string) (*JarNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	note := JarNote{ID: newID(), Text: text, CreatedAt: nowISO(r.now())}
	jar := append([]JarNote{note}, r.jar...)
	if err := r.records.Set(recordstore.KeyJar, jar); err != nil {
		return nil, err
	}
	r.jar = jar
	r.record(ctx, "add jar note")
	return &note, nil
}

// DeleteNote removes a jar note by id.
func (r *Repository) DeleteNote(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jar := slices.DeleteFunc(slices.Clone(r.jar), func(n JarNote) bool { return n.ID == id })
	if len(jar) == len(r.jar) {
		return ErrNotFound
	}
	if err := r.records.Set(recordstore.KeyJar, jar); err != nil {
		return err
	}
	r.jar = jar
	r.record(ctx, "delete jar note")
	return nil
}

// Micro returns the micro note, or false if none was ever saved.
func (r *Repository) Micro() (MicroNote, bool) {
	var m MicroNote
	if !r.records.Get(recordstore.KeyMicro, &m) {
		return MicroNote{}, false
	}
	return m, true
}

// SaveMicro stores the micro note. Blank text is a silent no-op.
func (r *Repository) SaveMicro(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	m := MicroNote{Text: text, At: nowISO(r.now())}
	if err := r.records.Set(recordstore.KeyMicro, &m); err != nil {
		return err
	}
	r.record(ctx, "save micro note")
	return nil
}

// Entries returns the filtered, sorted entries of a collection.
//
// The query is a case-insensitive substring match over title, text and date;
// an empty query matches everything. The sort mode only applies to the
// journal: the museum is always ordered by most recently updated.
func (r *Repository) Entries(col Collection, query string, sort SortMode) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := filterEntries(r.collection(col), query)
	sortEntries(entries, col, sort)
	return entries
}

// Entry returns a copy of a single entry.
func (r *Repository) Entry(col Collection, id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.collection(col) {
		if e.ID == id {
			e.PhotoIDs = slices.Clone(e.PhotoIDs)
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// CreateEntry stores a new museum or journal entry, compressing and storing
// each uploaded photo first so the persisted entry never references a
// not-yet-written blob. A fully empty entry (no title, no text, no photos)
// is a silent no-op.
func (r *Repository) CreateEntry(ctx context.Context, col Collection, f EntryFields, uploads [][]byte) (*Entry, error) {
	photoIDs, err := r.storeUploads(ctx, slices.Clone(f.PhotoIDs), uploads)
	if err != nil {
		return nil, err
	}
	f.Title = strings.TrimSpace(f.Title)
	f.Text = strings.TrimSpace(f.Text)
	if f.Title == "" && f.Text == "" && len(photoIDs) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	date := strings.TrimSpace(f.Date)
	if date == "" {
		date = dayISO(now)
	}
	at := nowISO(now)
	entry := Entry{
		ID:        newID(),
		Date:      date,
		Title:     f.Title,
		Text:      f.Text,
		PhotoIDs:  photoIDs,
		CreatedAt: at,
		UpdatedAt: at,
	}
	entries := append([]Entry{entry}, r.collection(col)...)
	if err := r.persistEntries(col, entries); err != nil {
		return nil, err
	}
	r.record(ctx, "create "+string(col)+" entry")
	return &entry, nil
}

// UpdateEntry replaces date, title, text and photoIds of an existing entry
// and refreshes updatedAt. New uploads are compressed, stored and appended
// to the supplied photo id list.
func (r *Repository) UpdateEntry(ctx context.Context, col Collection, id string, f EntryFields, uploads [][]byte) (*Entry, error) {
	photoIDs, err := r.storeUploads(ctx, slices.Clone(f.PhotoIDs), uploads)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := slices.Clone(r.collection(col))
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.ID == id })
	if idx < 0 {
		return nil, ErrNotFound
	}
	now := r.now()
	date := strings.TrimSpace(f.Date)
	if date == "" {
		date = dayISO(now)
	}
	entry := entries[idx]
	entry.Date = date
	entry.Title = strings.TrimSpace(f.Title)
	entry.Text = strings.TrimSpace(f.Text)
	entry.PhotoIDs = photoIDs
	entry.UpdatedAt = nowISO(now)
	entries[idx] = entry
	if err := r.persistEntries(col, entries); err != nil {
		return nil, err
	}
	r.record(ctx, "update "+string(col)+" entry")
	return &entry, nil
}

// RemovePhoto detaches a photo from an entry and deletes its blob. The two
// are coupled: there is no soft unlink that leaves an orphaned blob behind.
func (r *Repository) RemovePhoto(ctx context.Context, col Collection, entryID, photoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := slices.Clone(r.collection(col))
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.ID == entryID })
	if idx < 0 {
		return ErrNotFound
	}
	entry := entries[idx]
	entry.PhotoIDs = slices.DeleteFunc(slices.Clone(entry.PhotoIDs), func(id string) bool { return id == photoID })
	entry.UpdatedAt = nowISO(r.now())
	entries[idx] = entry
	if err := r.persistEntries(col, entries); err != nil {
		return err
	}
	if err := r.blobs.Delete(ctx, photoID); err != nil {
		slog.WarnContext(ctx, "Failed to delete detached photo", "photo", photoID, "err", err)
	}
	r.record(ctx, "remove photo from "+string(col)+" entry")
	return nil
}

// DeleteEntry removes an entry and every blob it references. Blob deletion is
// best-effort: one failed delete does not stop the cascade or the removal.
func (r *Repository) DeleteEntry(ctx context.Context, col Collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := slices.Clone(r.collection(col))
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	r.deleteBlobs(ctx, entries[idx].PhotoIDs)
	entries = slices.Delete(entries, idx, idx+1)
	if err := r.persistEntries(col, entries); err != nil {
		return err
	}
	r.record(ctx, "delete "+string(col)+" entry")
	return nil
}

// Messages returns the messages, most recently created first.
func (r *Repository) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := slices.Clone(r.messages)
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	return msgs
}

// Message returns a copy of a single message.
func (r *Repository) Message(id string) (Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messages {
		if m.ID == id {
			m.PhotoIDs = slices.Clone(m.PhotoIDs)
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

// ComposeMessage stores a new message. Empty text with no photos is a silent
// no-op. Outbound delivery is the caller's concern and must not influence
// whether the message is kept.
func (r *Repository) ComposeMessage(ctx context.Context, from, text string, uploads [][]byte) (*Message, error) {
	photoIDs, err := r.storeUploads(ctx, nil, uploads)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" && len(photoIDs) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	msg := Message{
		ID:        newID(),
		From:      strings.TrimSpace(from),
		Text:      text,
		PhotoIDs:  photoIDs,
		CreatedAt: nowISO(r.now()),
	}
	msgs := append([]Message{msg}, r.messages...)
	if err := r.records.Set(recordstore.KeyMessages, msgs); err != nil {
		return nil, err
	}
	r.messages = msgs
	r.record(ctx, "compose message")
	return &msg, nil
}

// DeleteMessage removes a message and cascades to its blobs.
func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.messages, func(m Message) bool { return m.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	r.deleteBlobs(ctx, r.messages[idx].PhotoIDs)
	msgs := slices.Delete(slices.Clone(r.messages), idx, idx+1)
	if err := r.records.Set(recordstore.KeyMessages, msgs); err != nil {
		return err
	}
	r.messages = msgs
	r.record(ctx, "delete message")
	return nil
}

// Photo returns a stored photo, or (nil, nil) when the id is unknown.
func (r *Repository) Photo(ctx context.Context, id string) (*blobstore.Photo, error) {
	return r.blobs.Get(ctx, id)
}

// Reset removes every record and every photo, returning the repository to
// built-in defaults.
func (r *Repository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range recordstore.Keys {
		if err := r.records.Delete(key); err != nil {
			return err
		}
	}
	if err := r.blobs.Wipe(ctx); err != nil {
		return err
	}
	r.load()
	r.record(ctx, "reset")
	return nil
}

// storeUploads compresses each uploaded photo and stores the result, in
// order, appending the new blob ids to ids. An undecodable upload is dropped
// and its siblings keep processing; a failed blob write rejects the whole
// operation. Blob writes complete before the caller persists the referencing
// record.
func (r *Repository) storeUploads(ctx context.Context, ids []string, uploads [][]byte) ([]string, error) {
	if ids == nil {
		ids = []string{}
	}
	for _, data := range uploads {
		res, err := imaging.Compress(data, imaging.Options{})
		if err != nil {
			slog.WarnContext(ctx, "Dropping undecodable photo", "err", err)
			continue
		}
		photo := blobstore.Photo{
			ID:        newID(),
			Data:      res.Data,
			Mime:      res.Mime,
			CreatedAt: nowISO(r.now()),
		}
		if err := r.blobs.Put(ctx, photo); err != nil {
			return nil, err
		}
		ids = append(ids, photo.ID)
	}
	return ids, nil
}

// deleteBlobs removes blobs best-effort, logging individual failures.
func (r *Repository) deleteBlobs(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := r.blobs.Delete(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to delete photo during cascade", "photo", id, "err", err)
		}
	}
}

// collection returns the backing slice for col. Callers must hold the lock.
func (r *Repository) collection(col Collection) []Entry {
	if col == Museum {
		return r.museum
	}
	return r.journal
}

// persistEntries writes entries to the record store, then swaps the
// in-memory collection. Callers must hold the write lock.
func (r *Repository) persistEntries(col Collection, entries []Entry) error {
	key := recordstore.KeyJournal
	if col == Museum {
		key = recordstore.KeyMuseum
	}
	if err := r.records.Set(key, entries); err != nil {
		return err
	}
	if col == Museum {
		r.museum = entries
	} else {
		r.journal = entries
	}
	return nil
}
