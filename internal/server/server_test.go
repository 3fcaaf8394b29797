package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keepsakelab/giftbox/internal/backup"
	"github.com/keepsakelab/giftbox/internal/blobstore"
	"github.com/keepsakelab/giftbox/internal/keepsake"
	"github.com/keepsakelab/giftbox/internal/outbound"
	"github.com/keepsakelab/giftbox/internal/recordstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	records, err := recordstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create record store: %v", err)
	}
	blobs := blobstore.New(filepath.Join(t.TempDir(), "photos.db"))
	t.Cleanup(func() {
		_ = blobs.Close()
	})
	repo := keepsake.New(records, blobs, nil)
	codec := backup.NewCodec(repo, blobs)
	s := New(repo, codec, outbound.NewResolver(), nil, "test")
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := range 20 {
		for x := range 20 {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func postEntryForm(t *testing.T, url string, fields map[string]string, photos [][]byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for i, p := range photos {
		fw, err := mw.CreateFormFile("photos", "photo.png")
		if err != nil {
			t.Fatalf("failed to create file part %d: %v", i, err)
		}
		if _, err := fw.Write(p); err != nil {
			t.Fatalf("failed to write file part %d: %v", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close form: %v", err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var out healthResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/health", nil), &out)
	if out.Status != "ok" || out.Version != "test" {
		t.Errorf("unexpected health %+v", out)
	}
}

func TestSettings_GetAndPut(t *testing.T) {
	ts := newTestServer(t)

	var got keepsake.Settings
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/settings", nil), &got)
	if got.Title != keepsake.DefaultTitle {
		t.Errorf("expected default title, got %q", got.Title)
	}

	var updated keepsake.Settings
	decodeInto(t, doJSON(t, http.MethodPut, ts.URL+"/api/settings", keepsake.Settings{Title: "Nostro", ToWhatsapp: "391234"}), &updated)
	if updated.Title != "Nostro" || updated.ToWhatsapp != "391234" {
		t.Errorf("unexpected settings %+v", updated)
	}
	// Blank subtitle falls back to the default.
	if updated.Subtitle != keepsake.DefaultSubtitle {
		t.Errorf("expected default subtitle, got %q", updated.Subtitle)
	}
}

func TestJar_AddListDeleteToday(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/jar", addNoteRequest{Text: "sei speciale"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	var notes notesResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/jar", nil), &notes)
	if len(notes.Notes) != 4 { // 3 seeded + 1 added
		t.Fatalf("expected 4 notes, got %d", len(notes.Notes))
	}
	if notes.Notes[0].Text != "sei speciale" {
		t.Errorf("newest note must come first, got %q", notes.Notes[0].Text)
	}

	var today todayResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/jar/today", nil), &today)
	if today.Note == nil {
		t.Fatal("expected a note")
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/jar/"+notes.Notes[0].ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/jar/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestJar_EmptyNoteRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/jar", addNoteRequest{Text: "   "})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if out.Error.Code != ErrorCodeValidationFailed {
		t.Errorf("unexpected error code %q", out.Error.Code)
	}
}

func TestEntries_CreateListSearchPhoto(t *testing.T) {
	ts := newTestServer(t)

	resp := postEntryForm(t, ts.URL+"/api/entries/journal", map[string]string{
		"date": "2024-07-01", "title": "Gita al mare", "text": "che giornata",
	}, [][]byte{pngUpload(t)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var created keepsake.Entry
	decodeInto(t, resp, &created)
	if len(created.PhotoIDs) != 1 {
		t.Fatalf("expected 1 photo, got %d", len(created.PhotoIDs))
	}

	// Search hits the title case-insensitively.
	var found entriesResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/entries/journal?q=MARE", nil), &found)
	if len(found.Entries) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found.Entries))
	}

	// The stored photo is served as a JPEG.
	photoResp, err := http.Get(ts.URL + "/api/photos/" + created.PhotoIDs[0])
	if err != nil {
		t.Fatalf("failed to fetch photo: %v", err)
	}
	defer func() { _ = photoResp.Body.Close() }()
	if photoResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", photoResp.StatusCode)
	}
	if ct := photoResp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("unexpected content type %q", ct)
	}

	// Deleting the entry makes the photo unreachable.
	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/entries/journal/"+created.ID, nil)
	_ = resp.Body.Close()
	gone, err := http.Get(ts.URL + "/api/photos/" + created.PhotoIDs[0])
	if err != nil {
		t.Fatalf("failed to fetch photo: %v", err)
	}
	_ = gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after cascade delete, got %d", gone.StatusCode)
	}
}

func TestEntries_UpdateKeepsListedPhotos(t *testing.T) {
	ts := newTestServer(t)

	resp := postEntryForm(t, ts.URL+"/api/entries/museum", map[string]string{"title": "Prima"}, [][]byte{pngUpload(t)})
	var created keepsake.Entry
	decodeInto(t, resp, &created)
	if len(created.PhotoIDs) != 1 {
		t.Fatalf("expected 1 photo, got %d", len(created.PhotoIDs))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Dopo")
	_ = mw.WriteField("photoIds", created.PhotoIDs[0])
	_ = mw.Close()
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/entries/museum/"+created.ID, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	updResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var updated keepsake.Entry
	decodeInto(t, updResp, &updated)
	if updated.Title != "Dopo" {
		t.Errorf("expected updated title, got %q", updated.Title)
	}
	if len(updated.PhotoIDs) != 1 || updated.PhotoIDs[0] != created.PhotoIDs[0] {
		t.Errorf("listed photo must be kept, got %v", updated.PhotoIDs)
	}
}

func TestEntries_UnknownCollection(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/entries/attic", nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEntries_EmptyCreateRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := postEntryForm(t, ts.URL+"/api/entries/museum", map[string]string{"title": "  "}, nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMessages_ComposeAndSend(t *testing.T) {
	ts := newTestServer(t)

	var updated keepsake.Settings
	decodeInto(t, doJSON(t, http.MethodPut, ts.URL+"/api/settings", keepsake.Settings{ToWhatsapp: "39 123"}), &updated)

	resp := postEntryForm(t, ts.URL+"/api/messages", map[string]string{"from": "io", "text": "a presto"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var m keepsake.Message
	decodeInto(t, resp, &m)

	var d outbound.Delivery
	decodeInto(t, doJSON(t, http.MethodPost, ts.URL+"/api/messages/"+m.ID+"/send", nil), &d)
	if d.Kind != outbound.KindWhatsapp {
		t.Errorf("expected whatsapp delivery, got %q", d.Kind)
	}
	if !strings.HasPrefix(d.URL, "https://wa.me/39123?") {
		t.Errorf("unexpected url %q", d.URL)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/messages/"+m.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestExportImportAndReset(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/jar", addNoteRequest{Text: "ricordati"})
	_ = resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "gift-backup-") {
		t.Errorf("unexpected disposition %q", cd)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}

	var okOut okResponse
	decodeInto(t, doJSON(t, http.MethodPost, ts.URL+"/api/reset", nil), &okOut)
	var notes notesResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/jar", nil), &notes)
	if len(notes.Notes) != 3 {
		t.Fatalf("reset must restore the seeded jar, got %d notes", len(notes.Notes))
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/import", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	importResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = importResp.Body.Close()
	if importResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", importResp.StatusCode)
	}
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/jar", nil), &notes)
	if len(notes.Notes) != 4 {
		t.Errorf("import must restore the exported jar, got %d notes", len(notes.Notes))
	}
}

func TestImport_MalformedRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/import", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHistory_DisabledReturnsEmpty(t *testing.T) {
	ts := newTestServer(t)
	var out historyResponse
	decodeInto(t, doJSON(t, http.MethodGet, ts.URL+"/api/history", nil), &out)
	if len(out.Commits) != 0 {
		t.Errorf("expected no commits, got %d", len(out.Commits))
	}
}

func TestWriteRateLimit(t *testing.T) {
	l := newWriteLimiter(1, time.Minute, 2)
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 4)
	for range 4 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jar", nil))
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests must pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests || statuses[3] != http.StatusTooManyRequests {
		t.Errorf("requests beyond the burst must be limited, got %v", statuses)
	}

	// Reads are never limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jar", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for read, got %d", rec.Code)
	}
}
