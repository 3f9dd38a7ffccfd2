// Copyright 2026 The WikiForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cookie

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Prefix:        "wf_",
		UseIP:         true,
		EncryptionKey: []byte("0123456789abcdef"),
		ValidationKey: []byte("test-validation-key"),
	}
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	return m
}

// remember runs a Remember round and returns a follow-up request carrying the
// resulting cookies from the given client address.
func remember(t *testing.T, m *Manager, username, password, ip string, persistent bool) *http.Request {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = ip + ":4912"
	require.NoError(t, m.Remember(w, r, username, password, persistent))

	next := httptest.NewRequest(http.MethodGet, "/view/Main/WebHome", nil)
	next.RemoteAddr = ip + ":4913"
	for _, c := range w.Result().Cookies() {
		next.AddCookie(c)
	}
	return next
}

func TestRememberRecallRoundTrip(t *testing.T) {
	m := newManager(t, testConfig())

	r := remember(t, m, "XWiki.Alice", "s3cret", "10.0.0.7", true)

	username, password, err := m.Recall(r)
	require.NoError(t, err)
	assert.Equal(t, "XWiki.Alice", username)
	assert.Equal(t, "s3cret", password)
	assert.True(t, m.Remembering(r))
}

func TestRecallNoCookies(t *testing.T) {
	m := newManager(t, testConfig())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, err := m.Recall(r)
	assert.ErrorIs(t, err, ErrNoCookies)
}

func TestRecallRejectsTamperedValue(t *testing.T) {
	m := newManager(t, testConfig())

	r := remember(t, m, "XWiki.Alice", "s3cret", "10.0.0.7", true)

	// Substitute a differently encrypted username; the validation hash no
	// longer covers the cookie contents.
	forged, err := m.encrypt("XWiki.Mallory")
	require.NoError(t, err)

	tampered := httptest.NewRequest(http.MethodGet, "/", nil)
	tampered.RemoteAddr = "10.0.0.7:4914"
	for _, c := range r.Cookies() {
		if c.Name == "wf_username" {
			c.Value = forged
		}
		tampered.AddCookie(c)
	}

	_, _, err = m.Recall(tampered)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestRecallRejectsDifferentClientIP(t *testing.T) {
	m := newManager(t, testConfig())

	r := remember(t, m, "XWiki.Alice", "s3cret", "10.0.0.7", true)
	r.RemoteAddr = "10.9.9.9:4915"

	_, _, err := m.Recall(r)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestRecallWithoutIPBinding(t *testing.T) {
	cfg := testConfig()
	cfg.UseIP = false
	m := newManager(t, cfg)

	r := remember(t, m, "XWiki.Alice", "s3cret", "10.0.0.7", true)
	r.RemoteAddr = "10.9.9.9:4915"

	username, _, err := m.Recall(r)
	require.NoError(t, err)
	assert.Equal(t, "XWiki.Alice", username)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:9000"
	assert.Equal(t, "127.0.0.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestCookieDomainGeneralization(t *testing.T) {
	cfg := testConfig()
	cfg.Domains = []string{"example.com", ".example.org"}
	m := newManager(t, cfg)

	tests := []struct {
		host string
		want string
	}{
		{"wiki.example.com", ".example.com"},
		{"example.com", ".example.com"},
		{"wiki.example.org:8080", ".example.org"},
		{"other.net", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			assert.Equal(t, tt.want, m.cookieDomain(r))
		})
	}
}

func TestCookieValuesAreQuotedOnTheWire(t *testing.T) {
	m := newManager(t, testConfig())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "10.0.0.7:4912"
	require.NoError(t, m.Remember(w, r, "XWiki.Alice", "s3cret", true))

	// w.Result().Cookies() strips the quotes while parsing, so the header
	// lines themselves are what carries the wire format.
	headers := w.Header().Values("Set-Cookie")
	require.Len(t, headers, 4)
	for _, h := range headers {
		name, rest, ok := strings.Cut(h, "=")
		require.True(t, ok, "malformed Set-Cookie %q", h)
		value, _, _ := strings.Cut(rest, ";")
		assert.True(t, strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`),
			"cookie %s value %q must be double-quoted", name, value)
	}
}

func TestForgetExpiresAllCookies(t *testing.T) {
	m := newManager(t, testConfig())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/logout", nil)
	m.Forget(w, r)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 4)
	for _, c := range cookies {
		assert.Less(t, c.MaxAge, 0, "cookie %s must expire", c.Name)
		assert.True(t, c.HttpOnly)
	}
}

func TestEncryptedValueHasNoPadding(t *testing.T) {
	m := newManager(t, testConfig())

	v, err := m.encrypt("XWiki.Alice")
	require.NoError(t, err)
	assert.NotContains(t, v, "=")

	got, err := m.decrypt(v)
	require.NoError(t, err)
	assert.Equal(t, "XWiki.Alice", got)
}
