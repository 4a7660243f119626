package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tablekit/internal/tableservice"
	"github.com/starford/tablekit/internal/testutil"
)

func testServer(t *testing.T) (*Server, *tableservice.Service) {
	t.Helper()

	svc, _, _ := testutil.TestService(t)
	return New(svc), svc
}

func seed(t *testing.T, svc *tableservice.Service, name, csv string) {
	t.Helper()
	if _, _, err := svc.PutResource(context.Background(), name, []byte(csv), false, ""); err != nil {
		t.Fatalf("PutResource %s: %v", name, err)
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called directly.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "list_resources":
		result, err = srv.listResources(ctx, req)
	case "read_headers":
		result, err = srv.readHeaders(ctx, req)
	case "read_rows":
		result, err = srv.readRows(ctx, req)
	case "preview_url":
		result, err = srv.previewURL(ctx, req)
	case "validate_foreign_key":
		result, err = srv.validateForeignKey(ctx, req)
	case "check_foreign_key":
		result, err = srv.checkForeignKey(ctx, req)
	case "get_foreign_key_contract":
		result, err = srv.getForeignKeyContract(ctx, req)
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

func TestListResources(t *testing.T) {
	srv, svc := testServer(t)

	if text := resultText(callTool(t, srv, "list_resources", nil)); text != "no resources found" {
		t.Errorf("empty list = %q", text)
	}

	seed(t, svc, "people", "id,name\n1,Ada\n")
	text := resultText(callTool(t, srv, "list_resources", nil))
	if text != "people (people.csv): 1 rows [id, name]" {
		t.Errorf("list = %q", text)
	}
}

func TestReadHeaders(t *testing.T) {
	srv, svc := testServer(t)
	seed(t, svc, "people", "id,name\n1,Ada\n")

	r := callTool(t, srv, "read_headers", map[string]any{"resource": "people"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"name"`) {
		t.Errorf("headers = %q", resultText(r))
	}

	r = callTool(t, srv, "read_headers", map[string]any{"resource": "ghost"})
	if !r.IsError || resultText(r) != "not found" {
		t.Errorf("missing resource = %q", resultText(r))
	}
}

func TestReadRows(t *testing.T) {
	srv, svc := testServer(t)
	seed(t, svc, "people", "id,name\n1,Ada\n2,Grace\n3,Linus\n")

	r := callTool(t, srv, "read_rows", map[string]any{"resource": "people", "limit": 1, "offset": 2})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, "Linus") || strings.Contains(text, "Ada") {
		t.Errorf("rows = %q", text)
	}
}

func TestReadRows_MissingArgument(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "read_rows", map[string]any{}); !r.IsError {
		t.Error("expected error without resource")
	}
}

func TestPreviewURL_BadScheme(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "preview_url", map[string]any{"url": "file:///etc/passwd"})
	if !r.IsError {
		t.Error("expected error for file scheme")
	}
}

func TestValidateForeignKey(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "validate_foreign_key", map[string]any{
		"declaration": `{"fields":"a","reference":{"resource":"t"}}`,
	})
	if r.IsError {
		t.Fatalf("permissive validate errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "must have the fields and resource properties") {
		t.Errorf("report = %q", resultText(r))
	}

	r = callTool(t, srv, "validate_foreign_key", map[string]any{
		"declaration": `{"fields":"a","reference":{"resource":"t"}}`,
		"strict":      true,
	})
	if !r.IsError {
		t.Error("strict validate should fail")
	}
}

func TestCheckForeignKey(t *testing.T) {
	srv, svc := testServer(t)
	seed(t, svc, "people", "id,name\n1,Ada\n")
	seed(t, svc, "orders", "id,person\n1,1\n")

	decl := `{"fields":"person","reference":{"resource":"people","fields":"id"}}`
	r := callTool(t, srv, "check_foreign_key", map[string]any{"resource": "orders", "declaration": decl})
	if resultText(r) != "all keys found" {
		t.Errorf("check = %q", resultText(r))
	}

	seed(t, svc, "orders", "id,person\n1,1\n2,7\n")
	r = callTool(t, srv, "check_foreign_key", map[string]any{"resource": "orders", "declaration": decl})
	if r.IsError || !strings.Contains(resultText(r), `"7"`) {
		t.Errorf("check = %q", resultText(r))
	}
}

func TestForeignKeyContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_foreign_key_contract", nil))
	if !strings.Contains(text, "Self reference") {
		t.Errorf("contract = %q", text)
	}
}
