package pagesvc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfpages/pagemanip/pagetest"
)

var testMCPImpl = &mcp.Implementation{Name: "pdfpages-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any, out any) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content %T", name, result.Content[0])
	}
	if out != nil {
		if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
			t.Fatalf("CallTool(%s): unmarshal: %v", name, err)
		}
	}
}

func mcpCallErr(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return result.Content[0].(*mcp.TextContent).Text
}

func TestMCP_Tools(t *testing.T) {
	svc := newTestService(t, testConfig())
	session := mcpSession(t, svc)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"pdfpages_open", "pdfpages_apply", "pdfpages_save", "pdfpages_split", "pdfpages_state", "pdfpages_list", "pdfpages_close", "pdfpages_history"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestMCP_SessionRoundTrip(t *testing.T) {
	svc := newTestService(t, testConfig())
	session := mcpSession(t, svc)
	dir := t.TempDir()

	var info SessionInfo
	mcpCall(t, session, "pdfpages_open", map[string]any{"path": pagetest.WriteDoc(t, dir, "book.pdf", 6)}, &info)
	if info.State.PageCount != 6 {
		t.Fatalf("open: %+v", info.State)
	}
	id := info.ID

	mcpCall(t, session, "pdfpages_apply", map[string]any{"session_id": id, "op": "extract_range", "start": 1, "end": 4}, &info)
	mcpCall(t, session, "pdfpages_apply", map[string]any{"session_id": id, "op": "insert_blank", "position": 2}, &info)
	if got := info.State.Pages; len(got) != 5 || got[2] != 0 || got[0] != 2 {
		t.Fatalf("pages: %v", got)
	}

	var saved map[string]string
	mcpCall(t, session, "pdfpages_save", map[string]any{"session_id": id}, &saved)
	if pagetest.ReadOut(t, saved["path"]) != "2,3,0,4,5" {
		t.Fatalf("saved: %s", pagetest.ReadOut(t, saved["path"]))
	}

	mcpCall(t, session, "pdfpages_state", map[string]any{"session_id": id}, &info)
	if info.State.LastOperation != "insert_blank" {
		t.Fatalf("last op: %q", info.State.LastOperation)
	}

	var hist struct {
		Entries []struct {
			SessionID string `json:"session_id"`
			Op        string `json:"op"`
		} `json:"entries"`
	}
	mcpCall(t, session, "pdfpages_history", map[string]any{"session_id": id}, &hist)
	if len(hist.Entries) != 4 || hist.Entries[1].Op != "extract_range" || hist.Entries[1].SessionID != id {
		t.Fatalf("history: %+v", hist.Entries)
	}

	mcpCall(t, session, "pdfpages_close", map[string]any{"session_id": id}, nil)
	if msg := mcpCallErr(t, session, "pdfpages_state", map[string]any{"session_id": id}); !strings.Contains(msg, "session not found") {
		t.Fatalf("after close: %s", msg)
	}
}

func TestMCP_Errors(t *testing.T) {
	svc := newTestService(t, testConfig())
	session := mcpSession(t, svc)

	var info SessionInfo
	mcpCall(t, session, "pdfpages_open", map[string]any{"path": pagetest.WriteDoc(t, t.TempDir(), "a.pdf", 2)}, &info)

	cases := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"session_id": info.ID, "op": "shuffle"}, "unknown action"},
		{map[string]any{"session_id": info.ID, "op": "add_after_page", "page": 2}, "out of range"},
		{map[string]any{"session_id": info.ID, "op": "extract_pages"}, "indices are required"},
	}
	for _, tc := range cases {
		if msg := mcpCallErr(t, session, "pdfpages_apply", tc.args); !strings.Contains(msg, tc.want) {
			t.Errorf("%v: got %q, want %q", tc.args, msg, tc.want)
		}
	}
}
