// CLAUDE:SUMMARY pdfpages CLI — one-shot page operations, YAML plans, parity split, info, and the HTTP/MCP session server.
// Command pdfpages rearranges the pages of PDF documents.
//
//	pdfpages apply in.pdf --op remove_first_page --op insert_blank:2 -o out.pdf
//	pdfpages plan batch.yaml
//	pdfpages split in.pdf
//	pdfpages info in.pdf
//	pdfpages serve --config pdfpages.yaml
//	pdfpages mcp
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/pdfpages/journal"
	"github.com/hazyhaar/pdfpages/kit"
	"github.com/hazyhaar/pdfpages/pagemanip"
	"github.com/hazyhaar/pdfpages/pagesvc"
	"github.com/hazyhaar/pdfpages/pdfcodec"
	"github.com/hazyhaar/pdfpages/plan"
)

var version = "dev"

// Global is shared by every subcommand.
type Global struct {
	Ctx    context.Context
	Logger *slog.Logger
}

// CLI is the command line.
type CLI struct {
	LogLevel  string           `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level (${enum})."`
	Journal   string           `name:"journal" env:"PDFPAGES_JOURNAL" help:"SQLite journal recording every operation (disabled when empty)."`
	OutputDir string           `name:"output-dir" help:"Directory for derived output files (default: next to the source)."`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit."`

	Apply ApplyCmd `cmd:"" help:"Apply page operations to a PDF and save the result."`
	Plan  PlanCmd  `cmd:"" help:"Run a YAML plan file."`
	Split SplitCmd `cmd:"" help:"Write even and odd position pages to <name>_even.pdf and <name>_odd.pdf."`
	Info  InfoCmd  `cmd:"" help:"Print page count and page sizes as JSON."`
	Serve ServeCmd `cmd:"" help:"Serve the session API over HTTP, with MCP at /mcp."`
	MCP   MCPCmd   `cmd:"" name:"mcp" help:"Serve the session tools over MCP stdio."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pdfpages"),
		kong.Description("Rearrange the pages of PDF documents."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cli.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := kctx.Run(&Global{Ctx: kit.WithTransport(ctx, "cli"), Logger: logger}, &cli)
	if err != nil {
		logger.Error("pdfpages failed", "command", kctx.Command(), "error", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitCode is 2 for usage errors, 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, pagemanip.ErrValidation),
		errors.Is(err, pagemanip.ErrUnknownAction),
		errors.Is(err, pagemanip.ErrIndexOutOfRange):
		return 2
	default:
		return 1
	}
}

// manipConfig builds the manipulator config shared by the one-shot commands,
// opening the journal when requested. The returned func closes it.
func (c *CLI) manipConfig(g *Global) (pagemanip.Config, func(), error) {
	cfg := pagemanip.Config{OutputDir: c.OutputDir, Logger: g.Logger}
	if c.Journal == "" {
		return cfg, func() {}, nil
	}
	j, err := journal.Open(c.Journal, journal.Config{Logger: g.Logger})
	if err != nil {
		return cfg, nil, err
	}
	cfg.Recorder = j
	return cfg, func() { j.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- apply ---

type ApplyCmd struct {
	File   string   `arg:"" type:"existingfile" help:"Source PDF."`
	Op     []string `name:"op" short:"p" help:"Operation as kind[:args], repeatable, applied in order (e.g. insert_blank:2, extract_range:0-4, remove_pages:1,3)." sep:"none"`
	Output string   `short:"o" help:"Destination (default: <name>_out.pdf)."`
}

func (a *ApplyCmd) Run(g *Global, cli *CLI) error {
	ops := make([]pagemanip.Op, 0, len(a.Op))
	for _, s := range a.Op {
		op, err := parseOpFlag(s)
		if err != nil {
			return fmt.Errorf("--op %q: %w", s, err)
		}
		ops = append(ops, op)
	}

	cfg, closeJournal, err := cli.manipConfig(g)
	if err != nil {
		return err
	}
	defer closeJournal()

	m, err := pagemanip.Open(g.Ctx, a.File, pdfcodec.New(pdfcodec.Config{Logger: g.Logger}), cfg)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := m.Apply(g.Ctx, op); err != nil {
			return err
		}
	}
	out, err := m.Save(g.Ctx, a.Output)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"output": out, "state": m.State()})
}

// --- plan ---

type PlanCmd struct {
	File string `arg:"" type:"existingfile" help:"Plan file (YAML)."`
}

func (p *PlanCmd) Run(g *Global, cli *CLI) error {
	pl, err := plan.Load(p.File)
	if err != nil {
		return err
	}
	cfg, closeJournal, err := cli.manipConfig(g)
	if err != nil {
		return err
	}
	defer closeJournal()

	res, err := pl.Run(g.Ctx, pdfcodec.New(pdfcodec.Config{Logger: g.Logger}), cfg)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// --- split ---

type SplitCmd struct {
	File string `arg:"" type:"existingfile" help:"Source PDF."`
}

func (s *SplitCmd) Run(g *Global, cli *CLI) error {
	cfg, closeJournal, err := cli.manipConfig(g)
	if err != nil {
		return err
	}
	defer closeJournal()

	m, err := pagemanip.Open(g.Ctx, s.File, pdfcodec.New(pdfcodec.Config{Logger: g.Logger}), cfg)
	if err != nil {
		return err
	}
	even, odd, err := m.ExtractEvenOddAndSave(g.Ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"even": even, "odd": odd})
}

// --- info ---

type InfoCmd struct {
	Files []string `arg:"" type:"existingfile" help:"PDF files."`
}

func (i *InfoCmd) Run(_ *Global, _ *CLI) error {
	infos := make([]pdfcodec.Info, 0, len(i.Files))
	for _, f := range i.Files {
		info, err := pdfcodec.Inspect(f)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	if len(infos) == 1 {
		return printJSON(infos[0])
	}
	return printJSON(infos)
}

// --- serve ---

type ServeCmd struct {
	Config string `short:"c" default:"pdfpages.yaml" help:"Service configuration file."`
	Listen string `help:"Listen address (overrides the config file)."`
}

func (s *ServeCmd) Run(g *Global, _ *CLI) error {
	cfg, err := pagesvc.LoadConfig(s.Config)
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}

	// The long-running server also exports Go runtime and process metrics.
	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))

	svc, closeSvc, err := newService(cfg, g.Logger, pagesvc.WithRegistry(reg))
	if err != nil {
		return err
	}
	defer closeSvc()
	go svc.Run(g.Ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Handler(&mcp.Implementation{Name: "pdfpages", Version: version}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	errCh := make(chan error, 1)
	go func() {
		g.Logger.Info("server starting", "addr", ln.Addr().String(), "max_conns", cfg.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-g.Ctx.Done():
	}
	g.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	g.Logger.Info("server stopped")
	return nil
}

// --- mcp ---

type MCPCmd struct {
	Config string `short:"c" help:"Service configuration file (optional)."`
}

func (m *MCPCmd) Run(g *Global, cli *CLI) error {
	cfg := pagesvc.DefaultConfig()
	cfg.JournalPath = cli.Journal
	cfg.OutputDir = cli.OutputDir
	if m.Config != "" {
		var err error
		if cfg, err = pagesvc.LoadConfig(m.Config); err != nil {
			return err
		}
	}

	svc, closeSvc, err := newService(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer closeSvc()
	go svc.Run(g.Ctx, time.Minute)

	srv := mcp.NewServer(&mcp.Implementation{Name: "pdfpages", Version: version}, nil)
	svc.RegisterMCP(srv)
	if err := srv.Run(g.Ctx, &mcp.StdioTransport{}); err != nil && g.Ctx.Err() == nil {
		return err
	}
	return nil
}

// newService opens the journal named in cfg and builds the session service.
func newService(cfg *pagesvc.Config, logger *slog.Logger, extra ...pagesvc.Option) (*pagesvc.Service, func(), error) {
	opts := append([]pagesvc.Option{pagesvc.WithLogger(logger)}, extra...)
	closeFn := func() {}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.Config{
			Retention:   cfg.JournalRetention,
			BusyTimeout: cfg.JournalBusyTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pagesvc.WithJournal(j))
		closeFn = func() { j.Close() }
	}
	svc, err := pagesvc.New(*cfg, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return svc, closeFn, nil
}
