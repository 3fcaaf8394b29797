// Package backup serializes the entire keepsake state into one portable JSON
// document and restores it.
//
// The document inlines every referenced photo as a base64 data URL, so a
// single file round-trips both the record store and the blob store. Import
// validates the document shape before touching any store, substitutes
// built-in defaults for missing collections, and skips malformed photo
// entries without aborting the rest.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/keepsakelab/giftbox/internal/blobstore"
	"github.com/keepsakelab/giftbox/internal/imaging"
	"github.com/keepsakelab/giftbox/internal/keepsake"
)

// FormatVersion tags the backup document format.
const FormatVersion = 1

// Photo is one inlined blob in a snapshot.
type Photo struct {
	ID        string `json:"id"`
	Mime      string `json:"mime"`
	CreatedAt string `json:"createdAt"`
	DataURL   string `json:"dataUrl"`
}

// Snapshot is the backup document. Transient: constructed for export,
// consumed on import, never persisted as a running entity.
type Snapshot struct {
	Version    int                `json:"version"`
	ExportedAt string             `json:"exportedAt"`
	Settings   keepsake.Settings  `json:"settings"`
	Jar        []keepsake.JarNote `json:"jar"`
	Museum     []keepsake.Entry   `json:"museum"`
	Journal    []keepsake.Entry   `json:"journal"`
	Messages   []keepsake.Message `json:"messages"`
	Photos     []Photo            `json:"photos"`
}

// FileName returns the conventional download name for a snapshot exported at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("gift-backup-%s.json", t.UTC().Format("2006-01-02"))
}

// Codec exports and imports snapshots against a repository and its blob store.
type Codec struct {
	repo  *keepsake.Repository
	blobs *blobstore.Store
	now   func() time.Time
}

// NewCodec returns a Codec over the given repository and blob store.
func NewCodec(repo *keepsake.Repository, blobs *blobstore.Store) *Codec {
	return &Codec{repo: repo, blobs: blobs, now: time.Now}
}

// Export assembles a snapshot of the current state. Photos referenced by
// museum, journal and message entries are fetched, deduplicated by id and
// inlined; ids that no longer resolve are skipped. Nothing is mutated.
func (c *Codec) Export(ctx context.Context) (*Snapshot, error) {
	st := c.repo.Snapshot()
	photos := []Photo{}
	for _, id := range c.repo.ReferencedPhotoIDs() {
		p, err := c.blobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		mime := p.Mime
		if mime == "" {
			mime = imaging.MimeJPEG
		}
		createdAt := p.CreatedAt
		if createdAt == "" {
			createdAt = isoNow(c.now())
		}
		photos = append(photos, Photo{
			ID:        p.ID,
			Mime:      mime,
			CreatedAt: createdAt,
			DataURL:   EncodeDataURL(mime, p.Data),
		})
	}
	return &Snapshot{
		Version:    FormatVersion,
		ExportedAt: isoNow(c.now()),
		Settings:   st.Settings,
		Jar:        st.Jar,
		Museum:     st.Museum,
		Journal:    st.Journal,
		Messages:   st.Messages,
		Photos:     photos,
	}, nil
}

// ExportJSON returns the marshaled snapshot and its download file name.
func (c *Codec) ExportJSON(ctx context.Context) ([]byte, string, error) {
	snap, err := c.Export(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, FileName(c.now()), nil
}

// Import restores a snapshot. The document is validated structurally before
// any store is touched; a malformed document aborts with prior state intact.
// Missing collections fall back to built-in defaults (messages to empty).
// Photos are restored under their original ids so photoId references in the
// restored collections resolve; a malformed photo entry is skipped.
func (c *Codec) Import(ctx context.Context, raw []byte) error {
	if err := validate(raw); err != nil {
		return err
	}

	var doc struct {
		Settings *keepsake.Settings `json:"settings"`
		Jar      []keepsake.JarNote `json:"jar"`
		Museum   []keepsake.Entry   `json:"museum"`
		Journal  []keepsake.Entry   `json:"journal"`
		Messages []keepsake.Message `json:"messages"`
		Photos   []Photo            `json:"photos"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	defaults := keepsake.DefaultState(c.now())
	st := keepsake.State{
		Settings: defaults.Settings,
		Jar:      doc.Jar,
		Museum:   doc.Museum,
		Journal:  doc.Journal,
		Messages: doc.Messages,
	}
	if doc.Settings != nil {
		st.Settings = *doc.Settings
	}
	if st.Jar == nil {
		st.Jar = defaults.Jar
	}
	if st.Museum == nil {
		st.Museum = defaults.Museum
	}
	if st.Journal == nil {
		st.Journal = defaults.Journal
	}
	if st.Messages == nil {
		st.Messages = defaults.Messages
	}

	if err := c.repo.ReplaceAll(ctx, st); err != nil {
		return err
	}

	for _, p := range doc.Photos {
		if p.ID == "" || p.DataURL == "" {
			continue
		}
		urlMime, data, err := DecodeDataURL(p.DataURL)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed photo in snapshot", "photo", p.ID, "err", err)
			continue
		}
		mime := p.Mime
		if mime == "" {
			mime = urlMime
		}
		if mime == "" {
			mime = imaging.MimeJPEG
		}
		createdAt := p.CreatedAt
		if createdAt == "" {
			createdAt = isoNow(c.now())
		}
		photo := blobstore.Photo{ID: p.ID, Data: data, Mime: mime, CreatedAt: createdAt}
		if err := c.blobs.Put(ctx, photo); err != nil {
			return err
		}
	}
	return nil
}

// isoNow formats t as an RFC 3339 UTC timestamp with millisecond precision,
// matching the timestamps stored in the collections.
func isoNow(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
