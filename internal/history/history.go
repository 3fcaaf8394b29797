// Package history keeps an audit trail of the record directory as git
// commits, using go-git so no git binary is needed.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one entry of the audit trail.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// Log records every mutation of the record directory as a commit. All
// methods are safe for concurrent use.
type Log struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// Open opens the git repository at dir, initializing it on first use.
func Open(dir, name, email string) (*Log, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet. Initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Log{dir: dir, name: name, email: email, repo: repo}, nil
}

// Record commits the current state of the record directory. The trail
// is best effort: failures are logged, never surfaced, so a broken git
// state cannot block a save.
func (l *Log) Record(ctx context.Context, message string) {
	if err := l.commit(ctx, message); err != nil {
		slog.Warn("history", "message", message, "err", err)
	}
}

func (l *Log) commit(ctx context.Context, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Detach from the request context but keep a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	_ = ctx // go-git does not take a context for local operations.

	w, err := l.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage records: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	now := time.Now()
	sig := &object.Signature{Name: l.name, Email: l.email, When: now}
	if _, err := w.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Commits returns the most recent commits, newest first, limited to n.
func (l *Log) Commits(_ context.Context, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	iter, err := l.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, nil // no commits yet is not an error
	}
	defer iter.Close()

	var commits []Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			When:    c.Author.When,
		})
	}
	return commits, nil
}
