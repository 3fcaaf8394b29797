// Typed handlers for the JSON API.

package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/keepsakelab/giftbox/internal/backup"
	"github.com/keepsakelab/giftbox/internal/history"
	"github.com/keepsakelab/giftbox/internal/keepsake"
	"github.com/keepsakelab/giftbox/internal/outbound"
)

type emptyRequest struct{}

type okResponse struct {
	OK bool `json:"ok"`
}

var okResp = &okResponse{OK: true}

// --- settings ---

func (s *Server) getSettings(_ context.Context, _ *emptyRequest) (*keepsake.Settings, error) {
	st := s.repo.Settings()
	return &st, nil
}

func (s *Server) putSettings(ctx context.Context, req *keepsake.Settings) (*keepsake.Settings, error) {
	st, err := s.repo.UpdateSettings(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// --- jar ---

type notesResponse struct {
	Notes []keepsake.JarNote `json:"notes"`
}

func (s *Server) listNotes(_ context.Context, _ *emptyRequest) (*notesResponse, error) {
	return &notesResponse{Notes: s.repo.Notes()}, nil
}

type addNoteRequest struct {
	Text string `json:"text"`
}

func (s *Server) addNote(ctx context.Context, req *addNoteRequest) (*okResponse, error) {
	n, err := s.repo.AddNote(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, badRequest("Note text is empty")
	}
	return okResp, nil
}

type noteByIDRequest struct {
	ID string `path:"id"`
}

func (s *Server) deleteNote(ctx context.Context, req *noteByIDRequest) (*okResponse, error) {
	if err := s.repo.DeleteNote(ctx, req.ID); err != nil {
		return nil, err
	}
	return okResp, nil
}

type todayResponse struct {
	Note *keepsake.JarNote `json:"note"`
}

func (s *Server) todayNote(_ context.Context, _ *emptyRequest) (*todayResponse, error) {
	n, found := s.repo.RandomNote()
	if !found {
		return &todayResponse{}, nil
	}
	return &todayResponse{Note: &n}, nil
}

// --- micro note ---

type microResponse struct {
	Micro *keepsake.MicroNote `json:"micro"`
}

func (s *Server) getMicro(_ context.Context, _ *emptyRequest) (*microResponse, error) {
	m, found := s.repo.Micro()
	if !found {
		return &microResponse{}, nil
	}
	return &microResponse{Micro: &m}, nil
}

type saveMicroRequest struct {
	Text string `json:"text"`
}

func (s *Server) putMicro(ctx context.Context, req *saveMicroRequest) (*okResponse, error) {
	if err := s.repo.SaveMicro(ctx, req.Text); err != nil {
		return nil, err
	}
	return okResp, nil
}

// --- entries ---

func parseCollection(raw string) (keepsake.Collection, error) {
	switch keepsake.Collection(raw) {
	case keepsake.Museum:
		return keepsake.Museum, nil
	case keepsake.Journal:
		return keepsake.Journal, nil
	}
	return "", badRequest("Unknown collection: " + raw)
}

type listEntriesRequest struct {
	Col  string `path:"col"`
	Q    string `query:"q"`
	Sort string `query:"sort"`
}

type entriesResponse struct {
	Entries []keepsake.Entry `json:"entries"`
}

func (s *Server) listEntries(_ context.Context, req *listEntriesRequest) (*entriesResponse, error) {
	col, err := parseCollection(req.Col)
	if err != nil {
		return nil, err
	}
	sort := keepsake.SortDesc
	if req.Sort == string(keepsake.SortAsc) {
		sort = keepsake.SortAsc
	}
	return &entriesResponse{Entries: s.repo.Entries(col, req.Q, sort)}, nil
}

type entryByIDRequest struct {
	Col string `path:"col"`
	ID  string `path:"id"`
}

func (s *Server) getEntry(_ context.Context, req *entryByIDRequest) (*keepsake.Entry, error) {
	col, err := parseCollection(req.Col)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.Entry(col, req.ID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Server) deleteEntry(ctx context.Context, req *entryByIDRequest) (*okResponse, error) {
	col, err := parseCollection(req.Col)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteEntry(ctx, col, req.ID); err != nil {
		return nil, err
	}
	return okResp, nil
}

type removePhotoRequest struct {
	Col     string `path:"col"`
	ID      string `path:"id"`
	PhotoID string `path:"photoID"`
}

func (s *Server) removePhoto(ctx context.Context, req *removePhotoRequest) (*okResponse, error) {
	col, err := parseCollection(req.Col)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemovePhoto(ctx, col, req.ID, req.PhotoID); err != nil {
		return nil, err
	}
	return okResp, nil
}

// createEntry handles the multipart create form: text fields plus any
// number of photo parts named "photos".
func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	col, err := parseCollection(r.PathValue("col"))
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	fields, uploads, err := parseEntryForm(r)
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	e, err := s.repo.CreateEntry(ctx, col, fields, uploads)
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	if e == nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, badRequest("Entry is empty"))
		return
	}
	writeJSONResponse(ctx, w, e, nil)
}

// updateEntry handles the multipart update form. Text fields fully
// replace the stored values; photo parts are appended.
func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	col, err := parseCollection(r.PathValue("col"))
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	fields, uploads, err := parseEntryForm(r)
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	e, err := s.repo.UpdateEntry(ctx, col, r.PathValue("id"), fields, uploads)
	if err != nil {
		writeJSONResponse[keepsake.Entry](ctx, w, nil, err)
		return
	}
	writeJSONResponse(ctx, w, e, nil)
}

func parseEntryForm(r *http.Request) (keepsake.EntryFields, [][]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return keepsake.EntryFields{}, nil, badRequest("Invalid multipart form")
	}
	fields := keepsake.EntryFields{
		Date:  r.FormValue("date"),
		Title: r.FormValue("title"),
		Text:  r.FormValue("text"),
	}
	// Repeated photoIds fields carry the kept attachments on update;
	// ids absent from the list are dropped from the entry.
	if r.MultipartForm != nil {
		fields.PhotoIDs = r.MultipartForm.Value["photoIds"]
	}
	uploads, err := readFileParts(r.MultipartForm, "photos")
	if err != nil {
		return keepsake.EntryFields{}, nil, err
	}
	return fields, uploads, nil
}

func readFileParts(form *multipart.Form, name string) ([][]byte, error) {
	if form == nil {
		return nil, nil
	}
	var uploads [][]byte
	for _, fh := range form.File[name] {
		f, err := fh.Open()
		if err != nil {
			return nil, badRequest("Unreadable photo part")
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, badRequest("Unreadable photo part")
		}
		uploads = append(uploads, data)
	}
	return uploads, nil
}

// --- photos ---

func (s *Server) servePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.repo.Photo(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorCodeInternal, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "Photo not found")
		return
	}
	w.Header().Set("Content-Type", p.Mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(p.Data)
}

// --- messages ---

type messagesResponse struct {
	Messages []keepsake.Message `json:"messages"`
}

func (s *Server) listMessages(_ context.Context, _ *emptyRequest) (*messagesResponse, error) {
	return &messagesResponse{Messages: s.repo.Messages()}, nil
}

// composeMessage handles the multipart compose form: "from" and "text"
// fields plus photo parts named "photos".
func (s *Server) composeMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeJSONResponse[keepsake.Message](ctx, w, nil, badRequest("Invalid multipart form"))
		return
	}
	uploads, err := readFileParts(r.MultipartForm, "photos")
	if err != nil {
		writeJSONResponse[keepsake.Message](ctx, w, nil, err)
		return
	}
	m, err := s.repo.ComposeMessage(ctx, r.FormValue("from"), r.FormValue("text"), uploads)
	if err != nil {
		writeJSONResponse[keepsake.Message](ctx, w, nil, err)
		return
	}
	if m == nil {
		writeJSONResponse[keepsake.Message](ctx, w, nil, badRequest("Message is empty"))
		return
	}
	writeJSONResponse(ctx, w, m, nil)
}

type messageByIDRequest struct {
	ID string `path:"id"`
}

func (s *Server) deleteMessage(ctx context.Context, req *messageByIDRequest) (*okResponse, error) {
	if err := s.repo.DeleteMessage(ctx, req.ID); err != nil {
		return nil, err
	}
	return okResp, nil
}

func (s *Server) sendMessage(_ context.Context, req *messageByIDRequest) (*outbound.Delivery, error) {
	m, err := s.repo.Message(req.ID)
	if err != nil {
		return nil, err
	}
	d, err := s.resolver.Resolve(s.repo.Settings(), m)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// --- backup ---

func (s *Server) exportBackup(w http.ResponseWriter, r *http.Request) {
	raw, name, err := s.codec.ExportJSON(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorCodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	_, _ = w.Write(raw)
}

func (s *Server) importBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "Failed to read backup")
		return
	}
	if err := s.codec.Import(ctx, raw); err != nil {
		if errors.Is(err, backup.ErrInvalidSnapshot) {
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorCodeInternal, err.Error())
		return
	}
	writeJSONResponse(ctx, w, okResp, nil)
}

func (s *Server) reset(ctx context.Context, _ *emptyRequest) (*okResponse, error) {
	if err := s.repo.Reset(ctx); err != nil {
		return nil, err
	}
	return okResp, nil
}

// --- history ---

type historyResponse struct {
	Commits []history.Commit `json:"commits"`
}

func (s *Server) listHistory(ctx context.Context, _ *emptyRequest) (*historyResponse, error) {
	resp := &historyResponse{Commits: []history.Commit{}}
	if s.hist == nil {
		return resp, nil
	}
	commits, err := s.hist.Commits(ctx, 100)
	if err != nil {
		return nil, err
	}
	if commits != nil {
		resp.Commits = commits
	}
	return resp, nil
}

// --- health ---

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) health(_ context.Context, _ *emptyRequest) (*healthResponse, error) {
	return &healthResponse{Status: "ok", Version: s.version}, nil
}
