package pagesvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/pdfpages/dbopen"
	"github.com/hazyhaar/pdfpages/journal"
	"github.com/hazyhaar/pdfpages/pagemanip"
	"github.com/hazyhaar/pdfpages/pagemanip/pagetest"
)

func testConfig() Config {
	cfg := *DefaultConfig()
	cfg.JournalPath = ""
	return cfg
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	j, err := journal.New(dbopen.OpenMemory(t), journal.Config{})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(cfg,
		WithCodec(pagetest.Codec{}),
		WithJournal(j),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := newTestService(t, testConfig())

	info, err := svc.Open(ctx, pagetest.WriteDoc(t, dir, "report.pdf", 4))
	if err != nil {
		t.Fatal(err)
	}
	if info.State.PageCount != 4 || !info.State.Loaded {
		t.Fatalf("open state: %+v", info.State)
	}

	if info, err = svc.Apply(ctx, info.ID, pagemanip.InsertFirst{}); err != nil {
		t.Fatal(err)
	}
	if info.State.PageCount != 5 || info.State.LastOperation != pagemanip.OpInsertFirst {
		t.Fatalf("after insert: %+v", info.State)
	}

	out, err := svc.Save(ctx, info.ID, ViewCurrent, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "report_out.pdf") {
		t.Fatalf("default path: %s", out)
	}
	if got := pagetest.ReadOut(t, out); got != "0,1,2,3,4" {
		t.Fatalf("saved pages: %s", got)
	}

	split, err := svc.Split(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pagetest.ReadOut(t, split.Even) != "0,2,4" || pagetest.ReadOut(t, split.Odd) != "1,3" {
		t.Fatalf("split: %s / %s", pagetest.ReadOut(t, split.Even), pagetest.ReadOut(t, split.Odd))
	}

	if err := svc.Close(info.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("after close: got %v", err)
	}

	// The history outlives the session.
	entries, err := svc.History(ctx, info.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []pagemanip.OpKind
	for _, e := range entries {
		kinds = append(kinds, e.Op)
		if e.SessionID != info.ID {
			t.Fatalf("entry session: %q", e.SessionID)
		}
	}
	want := []pagemanip.OpKind{pagemanip.OpLoad, pagemanip.OpInsertFirst, pagemanip.OpSave, pagemanip.OpExtractEvenOddSave}
	if len(kinds) != len(want) {
		t.Fatalf("history: got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("history: got %v, want %v", kinds, want)
		}
	}
}

func TestService_FailedOpKeepsState(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig())
	info, err := svc.Open(ctx, pagetest.WriteDoc(t, t.TempDir(), "a.pdf", 3))
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Apply(ctx, info.ID, pagemanip.ExtractRange{Start: 1, End: 7})
	if !errors.Is(err, pagemanip.ErrIndexOutOfRange) {
		t.Fatalf("got %v, want ErrIndexOutOfRange", err)
	}
	if got.State.PageCount != 3 || got.State.LastOperation != "" {
		t.Fatalf("state changed: %+v", got.State)
	}
}

func TestService_SaveViews(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := newTestService(t, testConfig())
	info, _ := svc.Open(ctx, pagetest.WriteDoc(t, dir, "a.pdf", 5))

	if _, err := svc.Save(ctx, info.ID, ViewEven, ""); !errors.Is(err, pagemanip.ErrValidation) {
		t.Fatalf("even before extraction: got %v", err)
	}
	if _, err := svc.Apply(ctx, info.ID, pagemanip.ExtractOdds{}); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Save(ctx, info.ID, ViewOdd, filepath.Join(dir, "odd.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if pagetest.ReadOut(t, out) != "2,4" {
		t.Fatalf("odd view: %s", pagetest.ReadOut(t, out))
	}
	if _, err := svc.Save(ctx, info.ID, "sideways", ""); !errors.Is(err, pagemanip.ErrValidation) {
		t.Fatalf("bad view: got %v", err)
	}
}

func TestService_OpenErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := newTestService(t, testConfig())

	if _, err := svc.Open(ctx, filepath.Join(dir, "missing.pdf")); !errors.Is(err, pagemanip.ErrNotFound) {
		t.Fatalf("missing: got %v", err)
	}
	if _, err := svc.Open(ctx, ""); !errors.Is(err, pagemanip.ErrValidation) {
		t.Fatalf("empty path: got %v", err)
	}
	if n := len(svc.List()); n != 0 {
		t.Fatalf("failed opens left %d sessions", n)
	}
}

func TestService_MaxSessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig()
	cfg.MaxSessions = 2
	svc := newTestService(t, cfg)
	path := pagetest.WriteDoc(t, dir, "a.pdf", 1)

	for range 2 {
		if _, err := svc.Open(ctx, path); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Open(ctx, path); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("got %v, want ErrTooManySessions", err)
	}
	sessions := svc.List()
	if len(sessions) != 2 {
		t.Fatalf("sessions: %d", len(sessions))
	}
	if err := svc.Close(sessions[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Open(ctx, path); err != nil {
		t.Fatalf("after close: %v", err)
	}
}

func TestService_Roots(t *testing.T) {
	ctx := context.Background()
	allowed := t.TempDir()
	other := t.TempDir()
	cfg := testConfig()
	cfg.Roots = []string{allowed}
	svc := newTestService(t, cfg)

	if _, err := svc.Open(ctx, pagetest.WriteDoc(t, other, "x.pdf", 1)); !errors.Is(err, ErrPathNotAllowed) {
		t.Fatalf("outside root: got %v", err)
	}
	info, err := svc.Open(ctx, pagetest.WriteDoc(t, allowed, "x.pdf", 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, info.ID, ViewCurrent, filepath.Join(other, "out.pdf")); !errors.Is(err, ErrPathNotAllowed) {
		t.Fatalf("save outside root: got %v", err)
	}
	if _, err := svc.Save(ctx, info.ID, ViewCurrent, filepath.Join(allowed, "..", filepath.Base(other), "out.pdf")); !errors.Is(err, ErrPathNotAllowed) {
		t.Fatalf("dot-dot escape: got %v", err)
	}
}

func TestService_RootsFollowSymlinks(t *testing.T) {
	// WHAT: a symlink inside a root that points outside it does not grant
	// access, for sources nor for save targets that do not exist yet.
	ctx := context.Background()
	allowed := t.TempDir()
	other := t.TempDir()
	pagetest.WriteDoc(t, other, "x.pdf", 1)
	if err := os.Symlink(other, filepath.Join(allowed, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	inner := filepath.Join(allowed, "inner")
	if err := os.Mkdir(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(inner, filepath.Join(allowed, "alias")); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Roots = []string{allowed}
	svc := newTestService(t, cfg)

	if _, err := svc.Open(ctx, filepath.Join(allowed, "escape", "x.pdf")); !errors.Is(err, ErrPathNotAllowed) {
		t.Fatalf("open through link: got %v", err)
	}
	info, err := svc.Open(ctx, pagetest.WriteDoc(t, inner, "y.pdf", 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, info.ID, ViewCurrent, filepath.Join(allowed, "escape", "new", "out.pdf")); !errors.Is(err, ErrPathNotAllowed) {
		t.Fatalf("save through link: got %v", err)
	}
	if _, err := svc.Save(ctx, info.ID, ViewCurrent, filepath.Join(allowed, "alias", "out.pdf")); err != nil {
		t.Fatalf("link staying inside the root: %v", err)
	}
}

func TestService_SessionIDs(t *testing.T) {
	// WHAT: IDs Open could not have produced are invalid input; well-formed
	// unknown IDs are not found.
	ctx := context.Background()
	svc := newTestService(t, testConfig())

	for _, id := range []string{"", "nope", "pgs_123", "op_" + uuid.NewString()} {
		if _, err := svc.Get(id); !errors.Is(err, pagemanip.ErrValidation) {
			t.Errorf("Get(%q): got %v, want ErrValidation", id, err)
		}
		if _, err := svc.Apply(ctx, id, pagemanip.InsertFirst{}); !errors.Is(err, pagemanip.ErrValidation) {
			t.Errorf("Apply(%q): got %v, want ErrValidation", id, err)
		}
		if err := svc.Close(id); !errors.Is(err, pagemanip.ErrValidation) {
			t.Errorf("Close(%q): got %v, want ErrValidation", id, err)
		}
		if _, err := svc.History(ctx, id, 0); !errors.Is(err, pagemanip.ErrValidation) {
			t.Errorf("History(%q): got %v, want ErrValidation", id, err)
		}
	}

	unknown := "pgs_" + uuid.NewString()
	if _, err := svc.Get(unknown); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown: got %v", err)
	}
	if err := svc.Close(unknown); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("close unknown: got %v", err)
	}
}

func TestService_ConcurrentApply(t *testing.T) {
	// WHAT: concurrent operations on one session are serialised; none is
	// lost while List, Get and Sweep run alongside.
	ctx := context.Background()
	svc := newTestService(t, testConfig())
	info, err := svc.Open(ctx, pagetest.WriteDoc(t, t.TempDir(), "a.pdf", 4))
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, info.ID, pagemanip.InsertFirst{}); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			svc.List()
			svc.Sweep()
			if _, err := svc.Get(info.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	got, err := svc.Get(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State.PageCount != 4+n {
		t.Fatalf("page count: got %d, want %d", got.State.PageCount, 4+n)
	}
	entries, err := svc.History(ctx, info.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1+n {
		t.Fatalf("journal entries: got %d, want %d", len(entries), 1+n)
	}
}

func TestService_Run(t *testing.T) {
	// WHAT: the background loop expires idle sessions and prunes the
	// journal, then stops with its context.
	ctx := context.Background()
	j, err := journal.New(dbopen.OpenMemory(t), journal.Config{Retention: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.IdleTimeout = time.Minute
	svc, err := New(cfg,
		WithCodec(pagetest.Codec{}),
		WithJournal(j),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	svc.now = func() time.Time { return start }
	info, err := svc.Open(ctx, pagetest.WriteDoc(t, t.TempDir(), "a.pdf", 2))
	if err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return start.Add(time.Hour) }

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		svc.Run(runCtx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := j.List(ctx, journal.Filter{SessionID: info.ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(svc.List()) == 0 && len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("after 5s: %d sessions, %d journal entries", len(svc.List()), len(entries))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.IdleTimeout = time.Minute
	svc := newTestService(t, cfg)

	now := time.Now()
	svc.now = func() time.Time { return now }
	stale, _ := svc.Open(ctx, pagetest.WriteDoc(t, t.TempDir(), "a.pdf", 1))

	now = now.Add(45 * time.Second)
	fresh, _ := svc.Open(ctx, pagetest.WriteDoc(t, t.TempDir(), "b.pdf", 1))

	now = now.Add(30 * time.Second)
	if n := svc.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, err := svc.Get(stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("stale: got %v", err)
	}
	if _, err := svc.Get(fresh.ID); err != nil {
		t.Fatalf("fresh: %v", err)
	}
}

func TestService_NoJournal(t *testing.T) {
	svc, err := New(testConfig(), WithCodec(pagetest.Codec{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.History(context.Background(), "pgs_x", 0); !errors.Is(err, ErrNoJournal) {
		t.Fatalf("got %v, want ErrNoJournal", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfpages.yaml")
	pagetest.WriteFile(t, path, "listen: \":9000\"\nmax_sessions: 8\nidle_timeout: 5m\nroots: [\""+dir+"\"]\ncodec:\n  max_file_size: 1024\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || cfg.MaxSessions != 8 || cfg.IdleTimeout != 5*time.Minute {
		t.Fatalf("config: %+v", cfg)
	}
	if cfg.Codec.MaxFileSize != 1024 {
		t.Fatalf("codec: %+v", cfg.Codec)
	}
	if cfg.JournalPath != DefaultConfig().JournalPath {
		t.Fatalf("default journal path lost: %q", cfg.JournalPath)
	}

	pagetest.WriteFile(t, path, "max_sessions: 0\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("max_sessions 0 must be rejected")
	}
	pagetest.WriteFile(t, path, "roots: [\"relative/dir\"]\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("relative root must be rejected")
	}
}
