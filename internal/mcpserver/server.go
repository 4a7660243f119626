// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tablekit tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/tableservice"
)

const (
	contractURI     = "tablekit://foreign-key-format"
	defaultRowLimit = 50
)

// Server wraps the MCP server with tablekit tools.
type Server struct {
	mcp *server.MCPServer
	svc *tableservice.Service
}

// New creates a new MCP server with all tablekit tools registered.
func New(svc *tableservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tablekit",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_resources",
		mcp.WithDescription("List cataloged tabular resources with their headers and row counts."),
	), s.listResources)

	s.mcp.AddTool(mcp.NewTool("read_headers",
		mcp.WithDescription("Read the header row of a resource."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource name (file path without extension, e.g. geo/cities)")),
	), s.readHeaders)

	s.mcp.AddTool(mcp.NewTool("read_rows",
		mcp.WithDescription("Read a page of data rows from a resource."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource name")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of rows to skip")),
	), s.readRows)

	s.mcp.AddTool(mcp.NewTool("preview_url",
		mcp.WithDescription("Fetch a remote CSV file or JSON array of objects and return its first rows."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http or https URL")),
		mcp.WithNumber("limit", mcp.Description("Max rows (default 50)")),
	), s.previewURL)

	s.mcp.AddTool(mcp.NewTool("validate_foreign_key",
		mcp.WithDescription("Check the structure of one foreign key declaration or an array of them. "+
			"Read the declaration format first via the get_foreign_key_contract tool or the "+
			contractURI+" resource."),
		mcp.WithString("declaration", mcp.Required(), mcp.Description("JSON foreign key declaration")),
		mcp.WithBoolean("strict", mcp.Description("Fail on the first invalid declaration")),
	), s.validateForeignKey)

	s.mcp.AddTool(mcp.NewTool("check_foreign_key",
		mcp.WithDescription("Look up every key of a resource in the referenced resource and list the rows whose key is missing."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Declaring resource")),
		mcp.WithString("declaration", mcp.Required(), mcp.Description("JSON foreign key declaration")),
	), s.checkForeignKey)

	s.mcp.AddTool(mcp.NewTool("get_foreign_key_contract",
		mcp.WithDescription("Returns the foreign key declaration format."),
	), s.getForeignKeyContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Foreign Key Declaration Format",
			mcp.WithResourceDescription("Shape and rules of a foreign key declaration."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listResources(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListResources(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no resources found"), nil
	}
	lines := make([]string, len(items))
	for i, r := range items {
		lines[i] = fmt.Sprintf("%s (%s): %d rows [%s]", r.Name, r.Path, r.RowCount, strings.Join(r.Headers, ", "))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readHeaders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := s.svc.GetResource(ctx, name)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(r.Headers), nil
}

func (s *Server) readRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultRowLimit)
	if limit <= 0 {
		limit = defaultRowLimit
	}
	page, err := s.svc.Rows(ctx, name, limit, max(req.GetInt("offset", 0), 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(page), nil
}

func (s *Server) previewURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultRowLimit)
	if limit <= 0 {
		limit = defaultRowLimit
	}
	p, err := s.svc.PreviewURL(ctx, rawURL, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(p), nil
}

func (s *Server) validateForeignKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("declaration")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reports, err := s.svc.ValidateForeignKeys(ctx, []byte(doc), req.GetBool("strict", false))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(reports), nil
}

func (s *Server) checkForeignKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := req.RequireString("declaration")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	checks, err := s.svc.CheckForeignKeys(ctx, name, []byte(doc))
	if err != nil {
		return toolError(err), nil
	}
	n := 0
	for _, c := range checks {
		n += len(c.Violations)
	}
	if n == 0 {
		return mcp.NewToolResultText("all keys found"), nil
	}
	return jsonResult(checks), nil
}

func (s *Server) getForeignKeyContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ForeignKeyContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ForeignKeyContract,
		},
	}, nil
}
