// CLAUDE:SUMMARY SQLite journal of page operations — records every load/apply/save, success or failure, queryable per session.
// Package journal persists one row per page operation in SQLite.
//
// A Journal implements pagemanip.Recorder, so it can be handed to
// pagemanip.Config and receives every load, operation and save. The
// session and request IDs are read from the context (kit.WithSessionID,
// kit.WithRequestID).
//
// Usage:
//
//	j, err := journal.Open("data/journal.db", journal.Config{})
//	defer j.Close()
//	m, err := pagemanip.Open(ctx, path, codec, pagemanip.Config{Recorder: j})
//	entries, err := j.List(ctx, journal.Filter{SessionID: "pgs_..."})
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pdfpages/dbopen"
	"github.com/hazyhaar/pdfpages/idgen"
	"github.com/hazyhaar/pdfpages/kit"
	"github.com/hazyhaar/pdfpages/pagemanip"
)

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one journal row.
type Entry struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id,omitempty"`
	RequestID    string           `json:"request_id,omitempty"`
	SourcePath   string           `json:"source_path"`
	Op           pagemanip.OpKind `json:"op"`
	Params       string           `json:"params"`
	PagesBefore  int              `json:"pages_before"`
	PagesAfter   int              `json:"pages_after"`
	Status       string           `json:"status"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Filter selects entries in List. Zero fields match everything.
type Filter struct {
	SessionID string
	Op        pagemanip.OpKind
	Status    string
	Since     time.Time
	Limit     int // default 100
}

// Config configures a Journal.
type Config struct {
	// Retention is the age after which Cleanup deletes entries (default: 30 days).
	Retention time.Duration `json:"retention" yaml:"retention"`

	// BusyTimeout is the SQLite busy_timeout used by Open (default: 10s).
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Journal writes and queries page operation entries.
type Journal struct {
	db     *sql.DB
	owned  bool
	cfg    Config
	logger *slog.Logger
	newID  idgen.Generator
	now    func() time.Time
}

// Open opens (or creates) the journal database at path.
func Open(path string, cfg Config) (*Journal, error) {
	cfg.defaults()
	db, err := dbopen.Open(path,
		dbopen.WithBusyTimeout(int(cfg.BusyTimeout.Milliseconds())),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)
	j := newJournal(db, cfg)
	j.owned = true
	return j, nil
}

// New wraps an already open database. The schema is applied; the caller
// keeps ownership of db.
func New(db *sql.DB, cfg Config) (*Journal, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return newJournal(db, cfg), nil
}

func newJournal(db *sql.DB, cfg Config) *Journal {
	cfg.defaults()
	return &Journal{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger,
		newID:  idgen.Prefixed("op_", idgen.Default),
		now:    time.Now,
	}
}

// Close closes the database if the journal opened it.
func (j *Journal) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}

// Record implements pagemanip.Recorder. Failures are logged, not returned.
func (j *Journal) Record(ctx context.Context, rec pagemanip.Record) {
	e := &Entry{
		SessionID:   kit.GetSessionID(ctx),
		RequestID:   kit.GetRequestID(ctx),
		SourcePath:  rec.Source,
		Op:          rec.Op,
		PagesBefore: rec.Before,
		PagesAfter:  rec.After,
		DurationMs:  rec.Duration.Milliseconds(),
		Status:      StatusSuccess,
	}
	if rec.Params != nil {
		if b, err := json.Marshal(rec.Params); err == nil {
			e.Params = string(b)
		}
	}
	if rec.Err != nil {
		e.Status = StatusError
		e.ErrorKind = pagemanip.Code(rec.Err)
		e.ErrorMessage = rec.Err.Error()
	}

	// A cancelled request still gets its row.
	if err := j.Insert(context.WithoutCancel(ctx), e); err != nil {
		j.logger.Warn("journal: record failed", "op", rec.Op, "source", rec.Source, "error", err)
	}
}

// Insert writes e, filling ID, CreatedAt, Status and Params when empty.
func (j *Journal) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.ErrorMessage != "" {
			e.Status = StatusError
		}
	}
	if e.Params == "" {
		e.Params = "{}"
	}

	_, err := dbopen.Exec(ctx, j.db, `INSERT INTO page_operations
		(id, session_id, request_id, source_path, op_kind, params,
		 pages_before, pages_after, status, error_kind, error_message,
		 duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.RequestID, e.SourcePath, string(e.Op), e.Params,
		e.PagesBefore, e.PagesAfter, e.Status, e.ErrorKind, e.ErrorMessage,
		e.DurationMs, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// List returns entries matching f, oldest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT id, session_id, request_id, source_path, op_kind, params,
		pages_before, pages_after, status, error_kind, error_message,
		duration_ms, created_at
		FROM page_operations WHERE 1=1`
	var args []any

	if f.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Op != "" {
		q += " AND op_kind = ?"
		args = append(args, string(f.Op))
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY created_at ASC, rowid ASC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			op string
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RequestID, &e.SourcePath, &op, &e.Params,
			&e.PagesBefore, &e.PagesAfter, &e.Status, &e.ErrorKind, &e.ErrorMessage,
			&e.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Op = pagemanip.OpKind(op)
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than the configured retention and returns
// the number of rows removed.
func (j *Journal) Cleanup(ctx context.Context) (int64, error) {
	threshold := j.now().Add(-j.cfg.Retention).UnixMilli()
	res, err := dbopen.Exec(ctx, j.db, "DELETE FROM page_operations WHERE created_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info("journal cleaned", "deleted", n, "retention", j.cfg.Retention)
	}
	return n, nil
}

var _ pagemanip.Recorder = (*Journal)(nil)
