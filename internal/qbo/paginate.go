// ABOUTME: Cursor-based pagination over the textual query endpoint.
// ABOUTME: Appends STARTPOSITION/MAXRESULTS clauses and gathers each page's single result array.

package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Page size bounds for paginated queries.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// QueryFunc runs one query and returns the raw response.
type QueryFunc func(ctx context.Context, query string) (json.RawMessage, error)

// NormalizePageSize applies the default (100) and hard cap (1000).
func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Paginate fetches base page by page, starting at position 1 and advancing by
// the page size. It stops after a batch shorter than the page size, an empty
// batch, or a response with no array field. Batches are concatenated in fetch
// order without deduplication. All cursor state is local to the call.
func Paginate(ctx context.Context, fetch QueryFunc, base string, pageSize int, observer Observer) ([]json.RawMessage, error) {
	if observer == nil {
		observer = noopObserver{}
	}
	size := NormalizePageSize(pageSize)
	base = strings.TrimSpace(base)

	items := []json.RawMessage{}
	for start := 1; ; start += size {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Method: http.MethodPost, Path: QueryPath, Err: err}
		}

		raw, err := fetch(ctx, fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", base, start, size))
		if err != nil {
			return nil, err
		}

		batch, err := ExtractBatch(raw)
		if err != nil {
			return nil, &UpstreamError{
				Method: http.MethodPost,
				Path:   QueryPath,
				Status: http.StatusOK,
				Body:   string(raw),
				Reason: err.Error(),
				Err:    err,
			}
		}
		observer.ObservePage(len(batch))
		items = append(items, batch...)

		if len(batch) < size {
			return items, nil
		}
	}
}

// ExtractBatch locates the page's item array in a query response. The array
// lives under "QueryResponse" when that object is present, otherwise at the top
// level. The field name varies with the queried entity, so it is found by type:
// exactly one array-valued field is expected. No array yields a nil batch; more
// than one is ErrAmbiguousBatch.
func ExtractBatch(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}

	fields := top
	if inner, ok := top["QueryResponse"]; ok {
		fields = nil
		if err := json.Unmarshal(inner, &fields); err != nil {
			return nil, fmt.Errorf("decoding QueryResponse: %w", err)
		}
	}

	var arrays []string
	for name, value := range fields {
		if isArray(value) {
			arrays = append(arrays, name)
		}
	}

	switch len(arrays) {
	case 0:
		return nil, nil
	case 1:
		var batch []json.RawMessage
		if err := json.Unmarshal(fields[arrays[0]], &batch); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", arrays[0], err)
		}
		return batch, nil
	default:
		sort.Strings(arrays)
		return nil, fmt.Errorf("%w: fields %s", ErrAmbiguousBatch, strings.Join(arrays, ", "))
	}
}

func isArray(v json.RawMessage) bool {
	for _, b := range v {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
