// CLAUDE:SUMMARY Session registry over page manipulators — open/apply/save/split/close with per-session locking, journal and metrics.
// Package pagesvc exposes page manipulation as long-lived sessions over
// MCP and HTTP.
//
// A session wraps one pagemanip.Manipulator. The manipulator itself is
// single-threaded; the service serialises calls per session and guards
// the registry with its own lock. Every operation is recorded in the
// journal (when configured) and in Prometheus metrics.
//
// Usage:
//
//	svc, err := pagesvc.New(cfg, pagesvc.WithJournal(j))
//	info, err := svc.Open(ctx, "/data/in.pdf")
//	info, err = svc.Apply(ctx, info.ID, pagemanip.InsertFirst{})
//	path, err := svc.Save(ctx, info.ID, pagesvc.ViewCurrent, "")
package pagesvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/pdfpages/idgen"
	"github.com/hazyhaar/pdfpages/journal"
	"github.com/hazyhaar/pdfpages/kit"
	"github.com/hazyhaar/pdfpages/pagemanip"
	"github.com/hazyhaar/pdfpages/pdfcodec"
)

var (
	// ErrSessionNotFound is returned for a well-formed ID that names no
	// open session (never opened, closed or expired).
	ErrSessionNotFound = errors.New("pagesvc: session not found")
	// ErrTooManySessions is returned by Open when MaxSessions are open.
	ErrTooManySessions = errors.New("pagesvc: too many open sessions")
	// ErrPathNotAllowed is returned when a source or destination resolves
	// outside every configured root, symlinks included.
	ErrPathNotAllowed = errors.New("pagesvc: path outside allowed roots")
	// ErrNoJournal is returned by History when no journal is configured.
	ErrNoJournal = errors.New("pagesvc: journal disabled")
)

const sessionPrefix = "pgs_"

// Views accepted by Save.
const (
	ViewCurrent = "current"
	ViewEven    = "even"
	ViewOdd     = "odd"
)

// SessionInfo describes an open session.
type SessionInfo struct {
	ID         string          `json:"id"`
	OpenedAt   time.Time       `json:"opened_at"`
	LastUsedAt time.Time       `json:"last_used_at"`
	State      pagemanip.State `json:"state"`
}

// SplitResult holds the files written by Split.
type SplitResult struct {
	Even string `json:"even"`
	Odd  string `json:"odd"`
}

type session struct {
	id       string
	opened   time.Time
	mu       sync.Mutex
	m        *pagemanip.Manipulator
	lastUsed time.Time
}

func (s *session) info() SessionInfo {
	return SessionInfo{ID: s.id, OpenedAt: s.opened, LastUsedAt: s.lastUsed, State: s.m.State()}
}

// Service manages page sessions.
type Service struct {
	cfg      Config
	codec    pagemanip.Codec
	journal  *journal.Journal
	recorder pagemanip.Recorder
	metrics  *metrics
	logger   *slog.Logger
	newID    idgen.Generator
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	pending  int
}

// Option configures a Service.
type Option func(*Service)

// WithCodec replaces the pdfcpu codec.
func WithCodec(c pagemanip.Codec) Option { return func(s *Service) { s.codec = c } }

// WithJournal records operations in j and enables History.
func WithJournal(j *journal.Journal) Option { return func(s *Service) { s.journal = j } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prom.Registry) Option {
	return func(s *Service) { s.metrics = newMetrics(reg, s.activeSessions) }
}

// New creates a Service. cfg is validated.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		logger:   slog.Default(),
		newID:    idgen.Prefixed(sessionPrefix, idgen.Default),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.codec == nil {
		cc := cfg.Codec
		if cc.Logger == nil {
			cc.Logger = s.logger
		}
		s.codec = pdfcodec.New(cc)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil, s.activeSessions)
	}
	recs := recorders{s.metrics}
	if s.journal != nil {
		recs = append(recs, s.journal)
	}
	s.recorder = recs
	return s, nil
}

func (s *Service) activeSessions() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(len(s.sessions))
}

// Open loads the document at path into a new session.
func (s *Service) Open(ctx context.Context, path string) (SessionInfo, error) {
	path, err := s.checkPath(path)
	if err != nil {
		return SessionInfo{}, err
	}

	s.mu.Lock()
	if len(s.sessions)+s.pending >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("%w (max %d)", ErrTooManySessions, s.cfg.MaxSessions)
	}
	s.pending++
	s.mu.Unlock()

	id := s.newID()
	m, err := pagemanip.Open(kit.WithSessionID(ctx, id), path, s.codec, pagemanip.Config{
		OutputDir: s.cfg.OutputDir,
		Logger:    s.logger.With("session_id", id),
		Recorder:  s.recorder,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if err != nil {
		return SessionInfo{}, err
	}
	now := s.now()
	sess := &session{id: id, opened: now, lastUsed: now, m: m}
	s.sessions[id] = sess
	s.metrics.opened.Inc()

	s.logger.Info("session opened", "session_id", id, "path", path, "pages", m.PageCount())
	return sess.info(), nil
}

// Apply runs op in session id.
func (s *Service) Apply(ctx context.Context, id string, op pagemanip.Op) (SessionInfo, error) {
	var info SessionInfo
	err := s.with(id, func(sess *session) error {
		err := sess.m.Apply(kit.WithSessionID(ctx, id), op)
		info = sess.info()
		return err
	})
	return info, err
}

// Save writes a view of session id to dest, or to the derived default path
// when dest is empty.
func (s *Service) Save(ctx context.Context, id, view, dest string) (string, error) {
	if dest != "" {
		var err error
		if dest, err = s.checkPath(dest); err != nil {
			return "", err
		}
	}
	var out string
	err := s.with(id, func(sess *session) error {
		ctx := kit.WithSessionID(ctx, id)
		var err error
		switch view {
		case "", ViewCurrent:
			out, err = sess.m.Save(ctx, dest)
		case ViewEven:
			out, err = sess.m.SaveEven(ctx, dest)
		case ViewOdd:
			out, err = sess.m.SaveOdd(ctx, dest)
		default:
			err = fmt.Errorf("pagesvc: unknown view %q: %w", view, pagemanip.ErrValidation)
		}
		return err
	})
	return out, err
}

// Split writes the even and odd pages of session id to side files.
func (s *Service) Split(ctx context.Context, id string) (SplitResult, error) {
	var res SplitResult
	err := s.with(id, func(sess *session) error {
		var err error
		res.Even, res.Odd, err = sess.m.ExtractEvenOddAndSave(kit.WithSessionID(ctx, id))
		return err
	})
	return res, err
}

// Get returns the state of session id.
func (s *Service) Get(id string) (SessionInfo, error) {
	var info SessionInfo
	err := s.with(id, func(sess *session) error {
		info = sess.info()
		return nil
	})
	return info, err
}

// List returns every open session, oldest first.
func (s *Service) List() []SessionInfo {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		out = append(out, sess.info())
		sess.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Close drops session id.
func (s *Service) Close(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.metrics.closed.WithLabelValues("client").Inc()
	s.logger.Info("session closed", "session_id", id)
	return nil
}

// History returns the journal entries of session id, oldest first. The
// session may already be closed.
func (s *Service) History(ctx context.Context, id string, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.journal.List(ctx, journal.Filter{SessionID: id, Limit: limit})
}

// Sweep closes sessions idle for longer than IdleTimeout and returns how
// many were closed.
func (s *Service) Sweep() int {
	if s.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue // in use
		}
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
			s.logger.Info("session expired", "session_id", id)
		}
	}
	if n > 0 {
		s.metrics.closed.WithLabelValues("idle").Add(float64(n))
	}
	return n
}

// Run sweeps idle sessions and prunes the journal every interval until ctx
// is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
			if s.journal != nil {
				if _, err := s.journal.Cleanup(ctx); err != nil {
					s.logger.Warn("journal cleanup", "error", err)
				}
			}
		}
	}
}

// with runs fn holding the lock of session id.
func (s *Service) with(id string, fn func(*session) error) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = s.now()
	return fn(sess)
}

// checkID rejects IDs that Open could not have produced.
func checkID(id string) error {
	if _, err := idgen.ParsePrefixed(sessionPrefix, id); err != nil {
		return fmt.Errorf("pagesvc: session id: %v: %w", err, pagemanip.ErrValidation)
	}
	return nil
}

// checkPath cleans path and enforces Roots. Containment is checked on the
// symlink-resolved path, so a link inside a root cannot lead out of it.
func (s *Service) checkPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("pagesvc: path is required: %w", pagemanip.ErrValidation)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("pagesvc: %s: %w", path, pagemanip.ErrValidation)
	}
	if len(s.cfg.Roots) == 0 {
		return abs, nil
	}
	resolved := resolveExisting(abs)
	for _, root := range s.cfg.Roots {
		rel, err := filepath.Rel(resolveExisting(filepath.Clean(root)), resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
}

// resolveExisting evaluates symlinks in the longest existing prefix of an
// absolute path and appends the missing tail unchanged. Save targets
// usually do not exist yet.
func resolveExisting(path string) string {
	dir, tail := path, ""
	for {
		if r, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(r, tail)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		tail = filepath.Join(filepath.Base(dir), tail)
		dir = parent
	}
}
