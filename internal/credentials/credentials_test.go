// ABOUTME: Tests for credential policies and redaction.
// ABOUTME: Covers lazy fixed loading, header resolution, and missing-field reporting.

package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFixed, p)

	p, err = ParsePolicy("per_request")
	require.NoError(t, err)
	assert.Equal(t, PolicyPerRequest, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestFixedResolver_LoadsOnceOnFirstUse(t *testing.T) {
	calls := 0
	r := NewFixedResolver(func() (Credential, error) {
		calls++
		return Credential{AccessToken: "tok", RealmID: "123"}, nil
	})
	assert.Equal(t, 0, calls, "load must be lazy")

	for i := 0; i < 3; i++ {
		cred, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "123", cred.RealmID)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, PolicyFixed, r.Policy())
}

func TestFixedResolver_RetriesAfterFailedLoad(t *testing.T) {
	attempt := 0
	r := NewFixedResolver(func() (Credential, error) {
		attempt++
		if attempt == 1 {
			return Credential{}, &MissingCredentialsError{Fields: []string{EnvAccessToken}}
		}
		return Credential{AccessToken: "tok", RealmID: "1"}, nil
	})

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", cred.AccessToken)
}

func TestConfigLoader(t *testing.T) {
	env := map[string]string{EnvAccessToken: "env-token", EnvRealmID: "env-realm"}
	getenv := func(k string) string { return env[k] }

	t.Run("config values win", func(t *testing.T) {
		cred, err := ConfigLoader("cfg-token", "cfg-realm", getenv)()
		require.NoError(t, err)
		assert.Equal(t, Credential{AccessToken: "cfg-token", RealmID: "cfg-realm"}, cred)
	})

	t.Run("falls back to environment", func(t *testing.T) {
		cred, err := ConfigLoader("", "", getenv)()
		require.NoError(t, err)
		assert.Equal(t, Credential{AccessToken: "env-token", RealmID: "env-realm"}, cred)
	})

	t.Run("names missing values", func(t *testing.T) {
		_, err := ConfigLoader("tok", "", func(string) string { return "" })()
		var missing *MissingCredentialsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{EnvRealmID}, missing.Fields)
	})
}

func TestHeaderResolver(t *testing.T) {
	r := NewHeaderResolver()
	assert.Equal(t, PolicyPerRequest, r.Policy())

	t.Run("reads both headers", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderAccessToken, "tok-a")
		h.Set(HeaderRealmID, "realm-a")

		cred, err := r.Resolve(WithHeaders(context.Background(), h))
		require.NoError(t, err)
		assert.Equal(t, Credential{AccessToken: "tok-a", RealmID: "realm-a"}, cred)
	})

	t.Run("names the missing realm header", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderAccessToken, "tok-a")

		_, err := r.Resolve(WithHeaders(context.Background(), h))
		var missing *MissingCredentialsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{HeaderRealmID}, missing.Fields)
		assert.Contains(t, err.Error(), HeaderRealmID)
	})

	t.Run("names both when no headers attached", func(t *testing.T) {
		_, err := r.Resolve(context.Background())
		var missing *MissingCredentialsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{HeaderAccessToken, HeaderRealmID}, missing.Fields)
	})
}

func TestHeaderResolver_ConcurrentCallersStayIsolated(t *testing.T) {
	r := NewHeaderResolver()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := http.Header{}
			h.Set(HeaderAccessToken, fmt.Sprintf("tok-%d", i))
			h.Set(HeaderRealmID, fmt.Sprintf("realm-%d", i))

			cred, err := r.Resolve(WithHeaders(context.Background(), h))
			if err != nil {
				errs <- err
				return
			}
			if cred.AccessToken != fmt.Sprintf("tok-%d", i) || cred.RealmID != fmt.Sprintf("realm-%d", i) {
				errs <- errors.New("credential crossed between callers")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestWithHeaders_CopiesHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderRealmID, "one")
	ctx := WithHeaders(context.Background(), h)
	h.Set(HeaderRealmID, "two")

	assert.Equal(t, "one", HeadersFromContext(ctx).Get(HeaderRealmID))
}

func TestCredential_NeverPrintsToken(t *testing.T) {
	cred := Credential{AccessToken: "super-secret-token", RealmID: "4620816365"}

	assert.NotContains(t, cred.String(), "super-secret-token")
	assert.NotContains(t, fmt.Sprintf("%v", cred), "super-secret-token")
	assert.NotContains(t, cred.String(), "4620816365")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("resolved", "cred", cred)
	assert.NotContains(t, buf.String(), "super-secret-token")
	assert.Contains(t, buf.String(), Fingerprint("4620816365"))
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(PolicyPerRequest, nil)
	require.NoError(t, err)
	assert.IsType(t, &HeaderResolver{}, r)

	_, err = NewResolver(PolicyFixed, nil)
	assert.Error(t, err)
}
