// ABOUTME: Error types for upstream QuickBooks failures.
// ABOUTME: UpstreamError for non-2xx or malformed responses, TransportError for connectivity.

package qbo

import (
	"errors"
	"fmt"
)

// ErrAmbiguousBatch is the reason recorded when a query response carries more
// than one array-valued field and the page's item batch cannot be identified.
var ErrAmbiguousBatch = errors.New("ambiguous result batch")

// UpstreamError reports a response the accounting service sent back that
// could not be treated as success.
type UpstreamError struct {
	Method string
	Path   string
	Status int
	Body   string
	// Reason is set when the status was 2xx but the payload broke an assumption.
	Reason string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("upstream %s %s (status %d): %s", e.Method, e.Path, e.Status, e.Reason)
	}
	return fmt.Sprintf("upstream %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TransportError reports a request that never produced a response.
// No retry is attempted.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
