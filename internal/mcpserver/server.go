// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes content collections to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/contentstore/internal/contentservice"
)

const formatURI = "contentstore://content-format"

// Server wraps the MCP server with content tools.
type Server struct {
	mcp *server.MCPServer
	svc *contentservice.Service
}

// New creates a new MCP server with all content tools registered.
func New(svc *contentservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"contentstore",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the configured content collections with their source globs."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("query_collection",
		mcp.WithDescription("Resolve a named collection. Paginated collections return one page; "+
			"page 0 and page 1 are distinct, and page defaults to 1."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithNumber("page", mcp.Description("Page number (paginated collections only)")),
	), s.queryCollection)

	s.mcp.AddTool(mcp.NewTool("read_module",
		mcp.WithDescription("Resolve one content file into its frontmatter data and body."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the content root (e.g. posts/hello.md)")),
		mcp.WithString("validator", mcp.Description("Optional validator reference, e.g. required:title,date")),
		mcp.WithString("transformers", mcp.Description("Optional comma-separated transformer references, e.g. trim,wikilinks")),
	), s.readModule)

	s.mcp.AddTool(mcp.NewTool("search_content",
		mcp.WithDescription("Search titles, data and bodies of modules resolved so far."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchContent)

	s.mcp.AddTool(mcp.NewTool("get_content_format",
		mcp.WithDescription("Returns how content files are split into frontmatter and body, "+
			"and which pipeline components can be referenced."),
	), s.getContentFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Content Format",
			mcp.WithResourceDescription("Content file format and pipeline component reference."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func (s *Server) listCollections(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Collections()), nil
}

func (s *Server) queryCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var page *int
	if p := req.GetInt("page", -1); p >= 0 {
		page = &p
	}
	coll, err := s.svc.QueryCollection(ctx, name, page)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(coll), nil
}

func (s *Server) readModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var transformers []string
	if raw := req.GetString("transformers", ""); raw != "" {
		transformers = strings.Split(raw, ",")
	}
	m, err := s.svc.ReadModule(ctx, path, req.GetString("validator", ""), transformers)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m), nil
}

func (s *Server) searchContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getContentFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ContentFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ContentFormat,
		},
	}, nil
}
