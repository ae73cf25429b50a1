package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/models"
	"github.com/starford/bearlinks/internal/noteservice"
	"github.com/starford/bearlinks/internal/store"
	"github.com/starford/bearlinks/internal/testutil"
)

type memWriter struct {
	updates map[string]string
}

func (w *memWriter) Update(_ context.Context, uid, text string) error {
	w.updates[uid] = text
	return nil
}

func testServer(t *testing.T) (*Server, *memWriter) {
	t.Helper()

	b := testutil.NewBearDB(t)
	alpha := b.AddNote(models.Note{Title: "Alpha", UID: "A", Text: "Hello world", Modified: 10, Created: 1})
	beta := b.AddNote(models.Note{Title: "Beta", UID: "B", Text: "See [[Alpha]] for details", Modified: 20, Created: 2})
	b.Link(beta, alpha)

	db, err := store.Open(b.Path, testutil.LinksTable, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	w := &memWriter{updates: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := noteservice.NewService(db, w, backlinks.DefaultFormat(), noteservice.WithLogger(logger))
	return New(svc, backlinks.DefaultFormat(), "test"), w
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "preview_backlinks":
		result, err = srv.previewBacklinks(ctx, req)
	case "plan_backlinks":
		result, err = srv.planBacklinks(ctx, req)
	case "get_note_links":
		result, err = srv.getNoteLinks(ctx, req)
	case "sync_backlinks":
		result, err = srv.syncBacklinks(ctx, req)
	case "get_block_format":
		result, err = srv.getBlockFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPreviewBacklinks(t *testing.T) {
	srv, w := testServer(t)

	r := callTool(t, srv, "preview_backlinks", map[string]any{"title": "Alpha"})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	var rec struct {
		NewTitles   []string `json:"new_titles"`
		NewBlock    string   `json:"new_block"`
		NeedsUpdate bool     `json:"needs_update"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rec.NeedsUpdate || len(rec.NewTitles) != 1 || rec.NewTitles[0] != "Beta" {
		t.Errorf("record = %+v", rec)
	}
	if len(w.updates) != 0 {
		t.Error("preview wrote notes")
	}
}

func TestPreviewBacklinks_Errors(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "preview_backlinks", map[string]any{}); !r.IsError {
		t.Error("expected error for missing title")
	}
	r := callTool(t, srv, "preview_backlinks", map[string]any{"title": "Nope"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestPlanThenSync(t *testing.T) {
	srv, w := testServer(t)

	r := callTool(t, srv, "plan_backlinks", map[string]any{})
	if !strings.Contains(resultText(r), `"Alpha"`) {
		t.Errorf("plan = %s", resultText(r))
	}

	r = callTool(t, srv, "sync_backlinks", map[string]any{})
	if r.IsError {
		t.Fatalf("sync error: %s", resultText(r))
	}
	var rep struct {
		Updated int `json:"updated"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Updated != 1 || w.updates["A"] == "" {
		t.Errorf("report = %+v, updates = %v", rep, w.updates)
	}
}

func TestGetNoteLinks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_note_links", map[string]any{"title": "Alpha"})
	var links noteservice.NoteLinks
	if err := json.Unmarshal([]byte(resultText(r)), &links); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(links.Incoming) != 1 || links.Incoming[0] != "Beta" || len(links.Outgoing) != 0 {
		t.Errorf("links = %+v", links)
	}
}

func TestGetBlockFormat(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_block_format", map[string]any{}))
	if !strings.Contains(text, "---\n### Backlinks\n- [[First linking note]]") {
		t.Errorf("format = %q", text)
	}
	if !strings.Contains(text, "`## Backlinks`") {
		t.Error("recognized headers missing")
	}
}
