package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/tableservice"
)

const (
	maxBodyBytes    = 10 << 20
	defaultRowLimit = 100
	maxRowLimit     = 10000
)

// Handler holds API route handlers.
type Handler struct {
	svc *tableservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tableservice.Service) *Handler {
	return &Handler{svc: svc}
}

// resourceName extracts the resource name from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. geo%2Fcities).
func resourceName(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListResources handles GET /api/resources.
//
//	@Summary		List cataloged resources
//	@Tags			resources
//	@Produce		json
//	@Success		200	{object}	ResourceListResponse
//	@Security		BearerAuth
//	@Router			/resources [get]
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListResources(r.Context())
	if err != nil {
		writeError(w, "list resources", err)
		return
	}
	writeJSON(w, http.StatusOK, ResourceListResponse{Resources: items, Total: len(items)})
}

// GetResource handles GET /api/resources/*.
//
//	@Summary		Get one resource
//	@Tags			resources
//	@Produce		json
//	@Param			name	path		string	true	"Resource name"
//	@Success		200		{object}	Resource
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources/{name} [get]
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	res, err := h.svc.GetResource(r.Context(), name)
	if err != nil {
		writeError(w, "get resource", err, "name", name)
		return
	}
	w.Header().Set("ETag", strconv.Quote(res.Checksum))
	writeJSON(w, http.StatusOK, res)
}

// PutResource handles PUT /api/resources/*.
//
//	@Summary		Create or replace a resource from CSV or a JSON array of objects
//	@Tags			resources
//	@Accept			text/csv
//	@Accept			json
//	@Produce		json
//	@Param			name		path		string	true	"Resource name"
//	@Param			If-Match	header		string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200			{object}	Resource
//	@Success		201			{object}	Resource
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources/{name} [put]
func (h *Handler) PutResource(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	name := resourceName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	isJSON := false
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		isJSON = mt == "application/json"
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	res, created, err := h.svc.PutResource(r.Context(), name, body, isJSON, ifMatch)
	if err != nil {
		writeError(w, "put resource", err, "name", name)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("ETag", strconv.Quote(res.Checksum))
	writeJSON(w, status, res)
}

// DeleteResource handles DELETE /api/resources/*.
//
//	@Summary		Delete a resource and its file
//	@Tags			resources
//	@Param			name	path	string	true	"Resource name"
//	@Success		204		"Resource deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources/{name} [delete]
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := h.svc.DeleteResource(r.Context(), name); err != nil {
		writeError(w, "delete resource", err, "name", name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rows handles GET /api/rows/*.
//
//	@Summary		Page through the rows of a resource
//	@Tags			rows
//	@Produce		json
//	@Param			name	path		string	true	"Resource name"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	RowPage
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rows/{name} [get]
func (h *Handler) Rows(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultRowLimit
	}
	limit = min(limit, maxRowLimit)
	offset, _ := strconv.Atoi(q.Get("offset"))
	offset = max(offset, 0)

	page, err := h.svc.Rows(r.Context(), name, limit, offset)
	if err != nil {
		writeError(w, "rows", err, "name", name)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Export handles GET /api/export/*.
//
//	@Summary		Re-read a resource file and render it as delimited text
//	@Tags			rows
//	@Produce		text/csv
//	@Param			name		path	string	true	"Resource name"
//	@Param			delimiter	query	string	false	"Single character, or 'tab'"
//	@Param			header		query	bool	false	"Emit the header row (default true)"
//	@Param			crlf		query	bool	false	"Use CRLF line endings"
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export/{name} [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	out, err := exportFormat(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), name, &buf, out); err != nil {
		writeError(w, "export", err, "name", name)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportFormat(q url.Values) (datasource.Format, error) {
	f := datasource.DefaultFormat()
	switch d := q.Get("delimiter"); {
	case d == "":
	case d == "tab" || d == `\t`:
		f.Delimiter = '\t'
	case utf8.RuneCountInString(d) == 1:
		f.Delimiter, _ = utf8.DecodeRuneInString(d)
	default:
		return f, errInvalidParam("delimiter")
	}
	if v := q.Get("header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidParam("header")
		}
		f.HasHeader = b
	}
	if v := q.Get("crlf"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidParam("crlf")
		}
		f.UseCRLF = b
	}
	if err := f.Validate(); err != nil {
		return f, errInvalidParam("delimiter")
	}
	return f, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid query parameter '" + string(e) + "'" }

// Preview handles GET /api/preview.
//
//	@Summary		Fetch the head of a remote CSV or JSON table
//	@Tags			rows
//	@Produce		json
//	@Param			url		query		string	true	"http(s) URL"
//	@Param			limit	query		int		false	"Max rows (default 20)"
//	@Success		200		{object}	PreviewResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	p, err := h.svc.PreviewURL(r.Context(), raw, min(limit, maxRowLimit))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeError(w, "preview", err, "url", raw)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ValidateForeignKeys handles POST /api/foreign-keys/validate.
//
//	@Summary		Check the shape of foreign key declarations
//	@Tags			foreign-keys
//	@Accept			json
//	@Produce		json
//	@Param			strict	query		bool	false	"Fail on the first invalid declaration"
//	@Success		200		{object}	ValidateResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/foreign-keys/validate [post]
func (h *Handler) ValidateForeignKeys(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))

	reports, err := h.svc.ValidateForeignKeys(r.Context(), body, strict)
	if err != nil {
		writeError(w, "validate foreign keys", err)
		return
	}
	valid := true
	for _, rep := range reports {
		valid = valid && rep.Valid
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: valid, Reports: reports})
}

// CheckForeignKeys handles POST /api/foreign-keys/check.
//
//	@Summary		Look up the foreign key values of a resource
//	@Tags			foreign-keys
//	@Accept			json
//	@Produce		json
//	@Param			resource	query		string	true	"Declaring resource"
//	@Success		200			{object}	CheckResponse
//	@Failure		404			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/foreign-keys/check [post]
func (h *Handler) CheckForeignKeys(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'resource' is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	checks, err := h.svc.CheckForeignKeys(r.Context(), resource, body)
	if err != nil {
		writeError(w, "check foreign keys", err, "resource", resource)
		return
	}
	n := 0
	for _, c := range checks {
		n += len(c.Violations)
	}
	writeJSON(w, http.StatusOK, CheckResponse{Resource: resource, Violations: n, Checks: checks})
}
