package datasource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bcicen/jstream"
	"github.com/goccy/go-json"

	"github.com/starford/tablekit/internal/apperr"
)

// jsonConfig controls how a JSON array of objects becomes CSV text.
type jsonConfig struct {
	emitDepth int
	nullText  string
	snippet   int
}

// defaultJSONConfig is built once and only ever read.
var defaultJSONConfig = jsonConfig{emitDepth: 1, nullText: "", snippet: 40}

// normalizeJSON turns a JSON array of objects into CSV text in the default
// dialect. The header is the union of all object keys in first-seen order;
// a key missing from an object yields an empty cell.
func normalizeJSON(r io.Reader, origin string, cfg jsonConfig) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", &apperr.IOError{Op: "read", Locator: origin, Err: err}
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return "", &apperr.ParseError{
			Source:   origin,
			Fragment: snippet(trimmed, cfg.snippet),
			Err:      errors.New("expected a JSON array of objects"),
		}
	}

	var (
		columns []string
		index   = make(map[string]int)
		objects []jstream.KVS
		elemErr error
	)

	dec := jstream.NewDecoder(bytes.NewReader(trimmed), cfg.emitDepth).ObjectAsKVS()
	for mv := range dec.Stream() {
		if elemErr != nil {
			// Keep draining so the decoder goroutine can finish.
			continue
		}
		kvs, ok := mv.Value.(jstream.KVS)
		if !ok {
			elemErr = &apperr.ParseError{
				Source:   origin,
				Fragment: snippet(tail(trimmed, mv.Offset), cfg.snippet),
				Err:      fmt.Errorf("element %d is not an object", len(objects)),
			}
			continue
		}
		for _, kv := range kvs {
			if _, ok := index[kv.Key]; !ok {
				index[kv.Key] = len(columns)
				columns = append(columns, kv.Key)
			}
		}
		objects = append(objects, kvs)
	}
	if err := dec.Err(); err != nil {
		return "", &apperr.ParseError{Source: origin, Err: err}
	}
	if elemErr != nil {
		return "", elemErr
	}
	// An array of empty objects has no columns: no header and no rows.
	if len(columns) == 0 {
		return "", nil
	}

	// jstream reports numbers as float64. The raw elements keep each
	// number's literal text so wide integers survive.
	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return "", &apperr.ParseError{Source: origin, Err: err}
	}
	if len(raws) != len(objects) {
		return "", &apperr.ParseError{Source: origin, Err: errors.New("element count mismatch")}
	}

	var b strings.Builder
	cw := DefaultFormat().writer(&b)
	if err := cw.Write(columns); err != nil {
		return "", fmt.Errorf("datasource: normalize header: %w", err)
	}
	for i, obj := range objects {
		rec := make([]string, len(columns))
		for _, kv := range obj {
			cell, err := cellText(kv.Value, raws[i][kv.Key], cfg)
			if err != nil {
				return "", &apperr.ParseError{Source: origin, Err: err}
			}
			rec[index[kv.Key]] = cell
		}
		if err := cw.Write(rec); err != nil {
			return "", fmt.Errorf("datasource: normalize row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("datasource: normalize flush: %w", err)
	}
	return b.String(), nil
}

// cellText renders one value. Strings, booleans and null come from the
// decoded value; numbers and nested values are the compacted raw text.
func cellText(v any, raw json.RawMessage, cfg jsonConfig) (string, error) {
	switch x := v.(type) {
	case nil:
		return cfg.nullText, nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func tail(b []byte, off int) []byte {
	if off < 0 || off >= len(b) {
		return nil
	}
	return b[off:]
}
