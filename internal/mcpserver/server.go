// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes backlinks tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/noteservice"
)

// Service is the subset of the note service exposed as tools.
type Service interface {
	Preview(ctx context.Context, title string) (backlinks.Record, error)
	Plan(ctx context.Context) ([]backlinks.Record, error)
	Links(ctx context.Context, title string) (*noteservice.NoteLinks, error)
	Sync(ctx context.Context) (*backlinks.Report, error)
}

// Server wraps the MCP server with backlinks tools.
type Server struct {
	mcp    *server.MCPServer
	svc    Service
	format backlinks.Format
}

// New creates a new MCP server with all tools registered.
func New(svc Service, format backlinks.Format, version string) *Server {
	s := &Server{svc: svc, format: format}

	s.mcp = server.NewMCPServer(
		"Bearlinks",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preview_backlinks",
		mcp.WithDescription("Show the backlinks block a sync would write for one note, without writing anything."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Exact note title")),
	), s.previewBacklinks)

	s.mcp.AddTool(mcp.NewTool("plan_backlinks",
		mcp.WithDescription("List every note whose backlinks block is out of date, with old and new entries."),
	), s.planBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_note_links",
		mcp.WithDescription("List the notes linking to a note and the notes it links to."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Exact note title")),
	), s.getNoteLinks)

	s.mcp.AddTool(mcp.NewTool("sync_backlinks",
		mcp.WithDescription("Back up the note store and rewrite every out-of-date backlinks block. "+
			"Read the block format first via the get_block_format tool or the "+BlockFormatURI+" resource."),
	), s.syncBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_block_format",
		mcp.WithDescription("Returns the format of the generated backlinks block."),
	), s.getBlockFormat)

	s.mcp.AddResource(
		mcp.NewResource(BlockFormatURI, "Backlinks Block Format",
			mcp.WithResourceDescription("Format and rules of the generated backlinks block."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) previewBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Preview(ctx, title)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) planBacklinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.svc.Plan(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("all backlinks blocks are up to date"), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) getNoteLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, title)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(links), nil
}

func (s *Server) syncBacklinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Sync(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) getBlockFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlockFormat(s.format)), nil
}

func (s *Server) readBlockFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockFormatURI,
			MIMEType: "text/markdown",
			Text:     BlockFormat(s.format),
		},
	}, nil
}
