// ABOUTME: Authenticated HTTP client for the QuickBooks Online v3 API, one per tenant credential.
// ABOUTME: Builds realm-scoped URLs, pins the minor version, and maps failures to typed errors.

package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/qbo-gateway/internal/credentials"
)

// Base URL templates. {realmId} is replaced with the tenant's realm id.
const (
	ProductionBaseURL = "https://quickbooks.api.intuit.com/v3/company/{realmId}"
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com/v3/company/{realmId}"
	realmPlaceholder  = "{realmId}"
)

// DefaultMinorVersion is the API minor version pinned on every request.
const DefaultMinorVersion = "75"

// QueryPath is the endpoint accepting textual queries.
const QueryPath = "/query"

// maxResponseSize bounds how much of an upstream body is read (32MB).
const maxResponseSize = 32 << 20

// API is the surface domain handlers call. *Client implements it.
type API interface {
	Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, params url.Values, body json.RawMessage) (json.RawMessage, error)
	Query(ctx context.Context, query string) (json.RawMessage, error)
	QueryAll(ctx context.Context, query string, pageSize int) ([]json.RawMessage, error)
}

// Observer receives request and pagination measurements. Metrics implements it.
type Observer interface {
	ObserveUpstreamRequest(method, path string, status int, elapsed time.Duration)
	ObservePage(items int)
}

type noopObserver struct{}

func (noopObserver) ObserveUpstreamRequest(string, string, int, time.Duration) {}
func (noopObserver) ObservePage(int)                                           {}

// Options holds the process-wide settings shared by every Client.
// None of it is tenant specific.
type Options struct {
	BaseURL      string // template containing {realmId}; defaults to ProductionBaseURL
	MinorVersion string
	HTTPClient   *http.Client
	Limiter      *RealmLimiter
	Observer     Observer
	Logger       *slog.Logger
}

// Client is bound to exactly one tenant credential. Build a new one per call;
// never reuse a Client across tenants.
type Client struct {
	cred     credentials.Credential
	baseURL  string
	minor    string
	http     *http.Client
	limiter  *RealmLimiter
	observer Observer
	logger   *slog.Logger
}

// New creates a client for cred.
func New(cred credentials.Credential, opts Options) (*Client, error) {
	if cred.AccessToken == "" || cred.RealmID == "" {
		return nil, errors.New("qbo: credential requires both access token and realm id")
	}

	tmpl := opts.BaseURL
	if tmpl == "" {
		tmpl = ProductionBaseURL
	}
	if !strings.Contains(tmpl, realmPlaceholder) {
		return nil, errors.New("qbo: base URL template must contain " + realmPlaceholder)
	}

	minor := opts.MinorVersion
	if minor == "" {
		minor = DefaultMinorVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.Replace(tmpl, realmPlaceholder, url.PathEscape(cred.RealmID), 1)

	return &Client{
		cred:     cred,
		baseURL:  strings.TrimRight(base, "/"),
		minor:    minor,
		http:     httpClient,
		limiter:  opts.Limiter,
		observer: observer,
		logger:   logger.With("realm", credentials.Fingerprint(cred.RealmID)),
	}, nil
}

// RealmID returns the realm this client is bound to.
func (c *Client) RealmID() string { return c.cred.RealmID }

// Get fetches path. A 204 yields a nil result.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, "", nil)
}

// Post sends body as JSON to path. A nil body sends an empty request.
func (c *Client) Post(ctx context.Context, path string, params url.Values, body json.RawMessage) (json.RawMessage, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	return c.do(ctx, http.MethodPost, path, params, "application/json", r)
}

// Query runs one textual query and returns the raw response.
func (c *Client) Query(ctx context.Context, query string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, QueryPath, nil, "application/text", strings.NewReader(query))
}

// QueryAll runs query page by page and concatenates every batch in fetch order.
func (c *Client) QueryAll(ctx context.Context, query string, pageSize int) ([]json.RawMessage, error) {
	return Paginate(ctx, c.Query, query, pageSize, c.observer)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, contentType string, body io.Reader) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx, c.cred.RealmID); err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("minorversion", c.minor)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observer.ObserveUpstreamRequest(method, path, 0, time.Since(start))
		c.logger.Warn("upstream request failed", "method", method, "path", path, "error", err)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.observer.ObserveUpstreamRequest(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	c.logger.Debug("upstream response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(data),
	)

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &UpstreamError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(data),
			Reason: "response body is not valid JSON",
		}
	}
	if hasFault(data) {
		return nil, &UpstreamError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(data),
			Reason: "response carries a Fault",
		}
	}
	return json.RawMessage(data), nil
}

// hasFault reports whether a 2xx body is a top-level QuickBooks Fault
// envelope. Batch and query responses can report errors this way.
func hasFault(data []byte) bool {
	if data[0] != '{' {
		return false
	}
	var envelope struct {
		Fault json.RawMessage `json:"Fault"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false
	}
	f := bytes.TrimSpace(envelope.Fault)
	return len(f) > 0 && string(f) != "null"
}
