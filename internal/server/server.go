// Package server implements the HTTP server and routing logic.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/keepsakelab/giftbox/internal/backup"
	"github.com/keepsakelab/giftbox/internal/history"
	"github.com/keepsakelab/giftbox/internal/keepsake"
	"github.com/keepsakelab/giftbox/internal/outbound"
)

// Server holds the handlers' dependencies. hist may be nil when the
// audit trail is disabled.
type Server struct {
	repo     *keepsake.Repository
	codec    *backup.Codec
	resolver *outbound.Resolver
	hist     *history.Log
	version  string
}

func New(repo *keepsake.Repository, codec *backup.Codec, resolver *outbound.Resolver, hist *history.Log, version string) *Server {
	return &Server{repo: repo, codec: codec, resolver: resolver, hist: hist, version: version}
}

// Routes creates and configures the HTTP router.
func (s *Server) Routes() http.Handler {
	mux := &http.ServeMux{}

	mux.Handle("GET /api/health", Wrap(s.health))

	// Settings
	mux.Handle("GET /api/settings", Wrap(s.getSettings))
	mux.Handle("PUT /api/settings", Wrap(s.putSettings))

	// Jar
	mux.Handle("GET /api/jar", Wrap(s.listNotes))
	mux.Handle("POST /api/jar", Wrap(s.addNote))
	mux.Handle("DELETE /api/jar/{id}", Wrap(s.deleteNote))
	mux.Handle("GET /api/jar/today", Wrap(s.todayNote))

	// Micro note
	mux.Handle("GET /api/micro", Wrap(s.getMicro))
	mux.Handle("PUT /api/micro", Wrap(s.putMicro))

	// Museum and journal entries
	mux.Handle("GET /api/entries/{col}", Wrap(s.listEntries))
	mux.Handle("GET /api/entries/{col}/{id}", Wrap(s.getEntry))
	mux.HandleFunc("POST /api/entries/{col}", s.createEntry)
	mux.HandleFunc("PUT /api/entries/{col}/{id}", s.updateEntry)
	mux.Handle("DELETE /api/entries/{col}/{id}", Wrap(s.deleteEntry))
	mux.Handle("DELETE /api/entries/{col}/{id}/photos/{photoID}", Wrap(s.removePhoto))

	// Photo bytes
	mux.HandleFunc("GET /api/photos/{id}", s.servePhoto)

	// Messages
	mux.Handle("GET /api/messages", Wrap(s.listMessages))
	mux.HandleFunc("POST /api/messages", s.composeMessage)
	mux.Handle("DELETE /api/messages/{id}", Wrap(s.deleteMessage))
	mux.Handle("POST /api/messages/{id}/send", Wrap(s.sendMessage))

	// Backup
	mux.HandleFunc("GET /api/export", s.exportBackup)
	mux.HandleFunc("POST /api/import", s.importBackup)
	mux.Handle("POST /api/reset", Wrap(s.reset))

	// Audit trail
	mux.Handle("GET /api/history", Wrap(s.listHistory))

	limiter := newWriteLimiter(60, time.Minute, 20)
	return logRequests(limiter.middleware(mux))
}

// logRequests logs each request line after it is handled.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("http", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start).Round(time.Millisecond))
	})
}
