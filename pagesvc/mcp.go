package pagesvc

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfpages/kit"
	"github.com/hazyhaar/pdfpages/pagemanip"
)

// RegisterMCP registers the pdfpages tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerOpenTool(srv)
	s.registerApplyTool(srv)
	s.registerSaveTool(srv)
	s.registerSplitTool(srv)
	s.registerStateTool(srv)
	s.registerListTool(srv)
	s.registerCloseTool(srv)
	s.registerHistoryTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var sessionProp = map[string]any{"type": "string", "description": "Session ID returned by pdfpages_open"}

// sessionReq is implemented by requests that target a session, so the
// decoder can tag the context.
type sessionReq interface{ session() string }

type sessionRef struct {
	SessionID string `json:"session_id"`
}

func (r *sessionRef) session() string { return r.SessionID }

// register wraps endpoint with recovery and logging and decodes T from
// the tool arguments.
func register[T any](s *Service, srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint) {
	mw := kit.Chain(kit.Recovery(s.logger), kit.Logging(s.logger, tool.Name))
	base := kit.DecodeJSON[T]()
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		res, err := base(req)
		if err != nil {
			return nil, err
		}
		if sr, ok := res.Request.(sessionReq); ok && sr.session() != "" {
			id := sr.session()
			res.EnrichCtx = func(ctx context.Context) context.Context { return kit.WithSessionID(ctx, id) }
		}
		return res, nil
	}
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- open ---

type openReq struct {
	Path string `json:"path"`
}

func (s *Service) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_open",
		Description: "Load a PDF file into a new page session and return its state.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path of the PDF file"},
		}, []string{"path"}),
	}
	register[openReq](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		return s.Open(ctx, req.(*openReq).Path)
	})
}

// --- apply ---

type applyReq struct {
	sessionRef
	Op string `json:"op"`
	pagemanip.Args
}

func (s *Service) registerApplyTool(srv *mcp.Server) {
	kinds := make([]string, 0, len(pagemanip.Kinds()))
	for _, k := range pagemanip.Kinds() {
		kinds = append(kinds, string(k))
	}
	intProp := func(desc string) map[string]any { return map[string]any{"type": "integer", "description": desc} }
	tool := &mcp.Tool{
		Name: "pdfpages_apply",
		Description: "Apply one page operation to a session. Positions are 0-based. " +
			"Operations: " + strings.Join(kinds, ", ") + ".",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp,
			"op":         map[string]any{"type": "string", "enum": kinds},
			"position":   intProp("Insert position for insert_blank (0..page_count)"),
			"page":       intProp("Page after which add_after_page inserts a blank"),
			"indices":    map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "description": "Pages for extract_pages / remove_pages"},
			"start":      intProp("First page of extract_range"),
			"end":        intProp("Last page of extract_range (inclusive)"),
		}, []string{"session_id", "op"}),
	}
	register[applyReq](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*applyReq)
		kind, err := pagemanip.ParseOpKind(r.Op)
		if err != nil {
			return nil, err
		}
		op, err := pagemanip.OpFromArgs(kind, r.Args)
		if err != nil {
			return nil, err
		}
		return s.Apply(ctx, r.SessionID, op)
	})
}

// --- save ---

type saveReq struct {
	sessionRef
	View string `json:"view"`
	Path string `json:"path"`
}

func (s *Service) registerSaveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_save",
		Description: "Write the current pages (or the even/odd view) of a session to a PDF file. Without path, writes <name>_out.pdf.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp,
			"view":       map[string]any{"type": "string", "enum": []string{ViewCurrent, ViewEven, ViewOdd}},
			"path":       map[string]any{"type": "string", "description": "Destination file"},
		}, []string{"session_id"}),
	}
	register[saveReq](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*saveReq)
		path, err := s.Save(ctx, r.SessionID, r.View, r.Path)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil
	})
}

// --- split ---

func (s *Service) registerSplitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_split",
		Description: "Write the pages at even positions to <name>_even.pdf and those at odd positions to <name>_odd.pdf. The session pages are unchanged.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionProp}, []string{"session_id"}),
	}
	register[sessionRef](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		return s.Split(ctx, req.(*sessionRef).SessionID)
	})
}

// --- state ---

func (s *Service) registerStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_state",
		Description: "Return the page state of a session.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionProp}, []string{"session_id"}),
	}
	register[sessionRef](s, srv, tool, func(_ context.Context, req any) (any, error) {
		return s.Get(req.(*sessionRef).SessionID)
	})
}

// --- list ---

type listReq struct{}

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_list",
		Description: "List open page sessions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	register[listReq](s, srv, tool, func(context.Context, any) (any, error) {
		return map[string]any{"sessions": s.List()}, nil
	})
}

// --- close ---

func (s *Service) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_close",
		Description: "Close a page session. Unsaved changes are lost.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionProp}, []string{"session_id"}),
	}
	register[sessionRef](s, srv, tool, func(_ context.Context, req any) (any, error) {
		id := req.(*sessionRef).SessionID
		if err := s.Close(id); err != nil {
			return nil, err
		}
		return map[string]string{"closed": id}, nil
	})
}

// --- history ---

type historyReq struct {
	sessionRef
	Limit int `json:"limit"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfpages_history",
		Description: "List the journaled operations of a session, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp,
			"limit":      map[string]any{"type": "integer", "description": "Maximum entries (default 100)"},
		}, []string{"session_id"}),
	}
	register[historyReq](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*historyReq)
		entries, err := s.History(ctx, r.SessionID, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries}, nil
	})
}
