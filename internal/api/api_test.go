package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/tablekit/internal/tableservice"
	"github.com/starford/tablekit/internal/testutil"
)

const peopleCSV = "id,name\n1,Ada\n2,Grace\n"

// testEnv sets up a temp workspace, SQLite catalog, service, and router.
// A non-empty token enables bearer auth.
func testEnv(t *testing.T, authToken string) (*tableservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*tableservice.Service, http.Handler) {
	t.Helper()

	svc, _, _ := testutil.TestService(t)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func putPeople(t *testing.T, h http.Handler) Resource {
	t.Helper()
	w := do(t, h, http.MethodPut, "/resources/people", peopleCSV, "Content-Type", "text/csv")
	if w.Code != http.StatusCreated {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	var res Resource
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestPutAndGetResource(t *testing.T) {
	_, router := testEnv(t, "")

	created := putPeople(t, router)
	if created.Name != "people" || created.Path != "people.csv" {
		t.Errorf("created = %+v", created)
	}
	if created.RowCount != 2 {
		t.Errorf("row count = %d, want 2", created.RowCount)
	}

	w := do(t, router, http.MethodGet, "/resources/people", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `"`+created.Checksum+`"` {
		t.Errorf("etag = %q", got)
	}
	var res Resource
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if strings.Join(res.Headers, ",") != "id,name" {
		t.Errorf("headers = %v", res.Headers)
	}
}

func TestPutResource_Replace(t *testing.T) {
	_, router := testEnv(t, "")
	created := putPeople(t, router)

	w := do(t, router, http.MethodPut, "/resources/people", "id,name\n3,Linus\n", "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, body = %s", w.Code, w.Body.String())
	}

	// The old checksum is stale now.
	w = do(t, router, http.MethodPut, "/resources/people", "id,name\n4,Ken\n", "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}
}

func TestPutResource_JSON(t *testing.T) {
	_, router := testEnv(t, "")

	body := `[{"city":"Paris","pop":2.1},{"city":"Rome","pop":2.8}]`
	w := do(t, router, http.MethodPut, "/resources/cities", body, "Content-Type", "application/json; charset=utf-8")
	if w.Code != http.StatusCreated {
		t.Fatalf("put json status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/rows/cities", "")
	var page RowPage
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 2 || page.Rows[1][0] != "Rome" || page.Rows[1][1] != "2.8" {
		t.Errorf("page = %+v", page)
	}
}

func TestPutResource_Malformed(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/resources/bad", "a,b\n1,2,3\n")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed csv = %d, want 422", w.Code)
	}
	w = do(t, router, http.MethodPut, "/resources/bad", `{"a":1}`, "Content-Type", "application/json")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("json object = %d, want 422", w.Code)
	}
}

func TestPutResource_Traversal(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/resources/..%2F..%2Fetc%2Fpasswd", peopleCSV)
	if w.Code != http.StatusForbidden {
		t.Errorf("traversal = %d, want 403, body = %s", w.Code, w.Body.String())
	}
}

func TestNestedResourceName(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/resources/geo%2Fcities", "name\nOslo\n")
	if w.Code != http.StatusCreated {
		t.Fatalf("put nested = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/resources/geo/cities", "")
	if w.Code != http.StatusOK {
		t.Errorf("get nested = %d", w.Code)
	}
}

func TestListResources(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)
	do(t, router, http.MethodPut, "/resources/orders", "id,person\n1,1\n")

	w := do(t, router, http.MethodGet, "/resources", "")
	var resp ResourceListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Resources[0].Name != "orders" || resp.Resources[1].Name != "people" {
		t.Errorf("order = %s, %s", resp.Resources[0].Name, resp.Resources[1].Name)
	}
}

func TestDeleteResource(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)

	w := do(t, router, http.MethodDelete, "/resources/people", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/resources/people", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/resources/people", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestRowsPaging(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)

	w := do(t, router, http.MethodGet, "/rows/people?limit=1&offset=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("rows = %d", w.Code)
	}
	var page RowPage
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 2 || len(page.Rows) != 1 || page.Rows[0][1] != "Grace" {
		t.Errorf("page = %+v", page)
	}
	if page.Limit != 1 || page.Offset != 1 {
		t.Errorf("limit/offset = %d/%d", page.Limit, page.Offset)
	}
}

func TestExport(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)

	w := do(t, router, http.MethodGet, "/export/people?delimiter=tab&header=false", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if got := w.Body.String(); got != "1\tAda\n2\tGrace\n" {
		t.Errorf("export body = %q", got)
	}
}

func TestExport_BadParams(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)

	for _, q := range []string{"delimiter=%3B%3B", "delimiter=%22", "header=maybe", "crlf=x"} {
		w := do(t, router, http.MethodGet, "/export/people?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestPreview(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a,b\n1,2\n3,4\n5,6\n"))
	}))
	defer remote.Close()
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/preview?limit=2&url="+remote.URL+"/t.csv", "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d, body = %s", w.Code, w.Body.String())
	}
	var p PreviewResponse
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if len(p.Rows) != 2 || strings.Join(p.Headers, ",") != "a,b" {
		t.Errorf("preview = %+v", p)
	}

	if w := do(t, router, http.MethodGet, "/preview", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing url = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/preview?url=ftp://example.com/a.csv", ""); w.Code != http.StatusBadRequest {
		t.Errorf("ftp url = %d, want 400", w.Code)
	}
}

func TestValidateForeignKeys(t *testing.T) {
	_, router := testEnv(t, "")

	doc := `[{"fields":"person","reference":{"resource":"people","fields":"id"}},
		{"fields":["a","b"],"reference":{"resource":"","fields":"x"}}]`
	w := do(t, router, http.MethodPost, "/foreign-keys/validate", doc)
	if w.Code != http.StatusOK {
		t.Fatalf("validate = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ValidateResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Valid || len(resp.Reports) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if !resp.Reports[0].Valid || resp.Reports[1].Valid {
		t.Errorf("reports = %+v", resp.Reports)
	}
	if len(resp.Reports[1].Errors) != 1 || !strings.Contains(resp.Reports[1].Errors[0], "must be an array") {
		t.Errorf("errors = %v", resp.Reports[1].Errors)
	}

	w = do(t, router, http.MethodPost, "/foreign-keys/validate?strict=true", doc)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("strict = %d, want 422", w.Code)
	}
}

func TestCheckForeignKeys(t *testing.T) {
	_, router := testEnv(t, "")
	putPeople(t, router)
	do(t, router, http.MethodPut, "/resources/orders", "id,person\n1,1\n2,9\n")

	doc := `{"fields":"person","reference":{"resource":"people","fields":"id"}}`
	w := do(t, router, http.MethodPost, "/foreign-keys/check?resource=orders", doc)
	if w.Code != http.StatusOK {
		t.Fatalf("check = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CheckResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Violations != 1 || resp.Checks[0].Violations[0].Row != 2 {
		t.Errorf("resp = %+v", resp)
	}

	if w := do(t, router, http.MethodPost, "/foreign-keys/check", doc); w.Code != http.StatusBadRequest {
		t.Errorf("missing resource = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/foreign-keys/check?resource=ghost", doc); w.Code != http.StatusNotFound {
		t.Errorf("unknown resource = %d, want 404", w.Code)
	}
}

func TestGetResource_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/resources/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing resource = %d, want 404", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodPut, "/resources/people", peopleCSV, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed put = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/resources", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/resources", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/resources", ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", sseStub())

	if w := do(t, router, http.MethodGet, "/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", bytes.NewReader(nil)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
