// ABOUTME: Tenant credentials for upstream QuickBooks calls and the policies that resolve them.
// ABOUTME: Fixed (process-wide, loaded lazily) and per-request (transport headers) resolvers.

package credentials

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Header names carrying per-request credentials.
const (
	HeaderAccessToken = "X-QBO-Access-Token"
	HeaderRealmID     = "X-QBO-Realm-Id"
)

// Environment variables consulted by the fixed policy when the config file leaves them empty.
const (
	EnvAccessToken = "QBO_ACCESS_TOKEN"
	EnvRealmID     = "QBO_REALM_ID"
)

// ErrMissingCredentials is matched by every MissingCredentialsError via errors.Is.
var ErrMissingCredentials = errors.New("missing credentials")

// MissingCredentialsError names the credential fields that could not be found.
type MissingCredentialsError struct {
	Fields []string
}

func (e *MissingCredentialsError) Error() string {
	return "missing credentials: " + strings.Join(e.Fields, ", ")
}

// Is reports whether target is ErrMissingCredentials.
func (e *MissingCredentialsError) Is(target error) bool {
	return target == ErrMissingCredentials
}

// Credential is the (access token, realm id) pair that governs one upstream call.
// It is never persisted and never logged in clear.
type Credential struct {
	AccessToken string
	RealmID     string
}

// String redacts the token so a Credential can't leak through fmt.
func (c Credential) String() string {
	return fmt.Sprintf("realm=%s token=[redacted]", Fingerprint(c.RealmID))
}

// LogValue redacts the token so a Credential can't leak through slog.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("realm", Fingerprint(c.RealmID)),
		slog.String("token", "[redacted]"),
	)
}

// Fingerprint returns a short stable hash of a realm id for logs and audit rows.
func Fingerprint(realmID string) string {
	if realmID == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(realmID))
	return hex.EncodeToString(sum[:6])
}

// Policy selects how credentials are resolved. It is fixed for the process lifetime.
type Policy string

const (
	PolicyFixed      Policy = "fixed"
	PolicyPerRequest Policy = "per_request"
)

// ParsePolicy validates a policy name. An empty string selects the fixed policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.TrimSpace(s)) {
	case "", PolicyFixed:
		return PolicyFixed, nil
	case PolicyPerRequest:
		return PolicyPerRequest, nil
	default:
		return "", fmt.Errorf("unknown credential policy %q (want %q or %q)", s, PolicyFixed, PolicyPerRequest)
	}
}

// Resolver determines which credential governs the call carried by ctx.
// Implementations must be safe for concurrent use and must not share one
// caller's result with another.
type Resolver interface {
	Resolve(ctx context.Context) (Credential, error)
	Policy() Policy
}

// LoadFunc produces the process-wide credential for the fixed policy.
type LoadFunc func() (Credential, error)

// FixedResolver returns the same credential for every call. The credential is
// loaded on first use and cached; a failed load is retried on the next call.
type FixedResolver struct {
	mu     sync.Mutex
	load   LoadFunc
	cached *Credential
}

// NewFixedResolver creates a resolver around load.
func NewFixedResolver(load LoadFunc) *FixedResolver {
	return &FixedResolver{load: load}
}

// Resolve returns the cached credential, loading it if necessary.
func (r *FixedResolver) Resolve(_ context.Context) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return *r.cached, nil
	}

	cred, err := r.load()
	if err != nil {
		return Credential{}, err
	}
	r.cached = &cred
	return cred, nil
}

// Policy returns PolicyFixed.
func (r *FixedResolver) Policy() Policy { return PolicyFixed }

// ConfigLoader builds a LoadFunc from configured values, falling back to the
// QBO_ACCESS_TOKEN / QBO_REALM_ID environment variables via getenv.
func ConfigLoader(accessToken, realmID string, getenv func(string) string) LoadFunc {
	return func() (Credential, error) {
		cred := Credential{
			AccessToken: strings.TrimSpace(accessToken),
			RealmID:     strings.TrimSpace(realmID),
		}
		if cred.AccessToken == "" && getenv != nil {
			cred.AccessToken = strings.TrimSpace(getenv(EnvAccessToken))
		}
		if cred.RealmID == "" && getenv != nil {
			cred.RealmID = strings.TrimSpace(getenv(EnvRealmID))
		}

		var missing []string
		if cred.AccessToken == "" {
			missing = append(missing, EnvAccessToken)
		}
		if cred.RealmID == "" {
			missing = append(missing, EnvRealmID)
		}
		if len(missing) > 0 {
			return Credential{}, &MissingCredentialsError{Fields: missing}
		}
		return cred, nil
	}
}

// HeaderResolver reads a fresh credential from the inbound call's headers.
// Nothing is cached between calls.
type HeaderResolver struct{}

// NewHeaderResolver creates a per-request resolver.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

// Resolve reads both credential headers from the headers attached to ctx.
func (r *HeaderResolver) Resolve(ctx context.Context) (Credential, error) {
	h := HeadersFromContext(ctx)

	cred := Credential{
		AccessToken: strings.TrimSpace(h.Get(HeaderAccessToken)),
		RealmID:     strings.TrimSpace(h.Get(HeaderRealmID)),
	}

	var missing []string
	if cred.AccessToken == "" {
		missing = append(missing, HeaderAccessToken)
	}
	if cred.RealmID == "" {
		missing = append(missing, HeaderRealmID)
	}
	if len(missing) > 0 {
		return Credential{}, &MissingCredentialsError{Fields: missing}
	}
	return cred, nil
}

// Policy returns PolicyPerRequest.
func (r *HeaderResolver) Policy() Policy { return PolicyPerRequest }

type headersKey struct{}

// WithHeaders attaches the inbound transport headers to ctx.
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headersKey{}, h.Clone())
}

// HeadersFromContext returns the headers attached by WithHeaders, or an empty set.
func HeadersFromContext(ctx context.Context) http.Header {
	h, ok := ctx.Value(headersKey{}).(http.Header)
	if !ok || h == nil {
		return http.Header{}
	}
	return h
}

// NewResolver returns the resolver for policy.
func NewResolver(policy Policy, load LoadFunc) (Resolver, error) {
	switch policy {
	case PolicyFixed:
		if load == nil {
			return nil, errors.New("fixed credential policy requires a loader")
		}
		return NewFixedResolver(load), nil
	case PolicyPerRequest:
		return NewHeaderResolver(), nil
	default:
		return nil, fmt.Errorf("unknown credential policy %q", policy)
	}
}
