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

// Package cookie implements the persistent "remember me" login. Credentials
// are carried in four cookies (username, password, rememberme, validation);
// the username and password values may be encrypted and the whole set may be
// bound to the client IP through the validation hash.
package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wikiforge/wikiforge/internal/audit"
)

// Cookie base names; the configured prefix is prepended to each.
const (
	cookieUsername   = "username"
	cookiePassword   = "password"
	cookieRememberMe = "rememberme"
	cookieValidation = "validation"
)

const fieldSeparator = ":"

// Protection selects which safeguards apply to the credential cookies.
type Protection string

const (
	// ProtectionNone stores credentials as plain base64. Only for tests.
	ProtectionNone Protection = "none"

	// ProtectionValidation adds the keyed validation hash cookie.
	ProtectionValidation Protection = "validation"

	// ProtectionEncryption encrypts the username and password values.
	ProtectionEncryption Protection = "encryption"

	// ProtectionAll combines validation and encryption. The default.
	ProtectionAll Protection = "all"
)

// Errors returned by Recall.
var (
	ErrNoCookies = errors.New("no login cookies present")
	ErrTampered  = errors.New("login cookies failed validation")
)

// Config holds the cookie manager settings.
type Config struct {
	// Prefix is prepended to every cookie name, so several deployments can
	// share a domain.
	Prefix string

	// Path limits the cookies to a URL prefix. Defaults to "/".
	Path string

	// Domains lists generalized cookie domains. The first suffix matching
	// the request host is used; no match means a host-only cookie.
	Domains []string

	// Lifetime of persistent cookies. Zero selects 14 days.
	Lifetime time.Duration

	// Protection level. Empty selects ProtectionAll.
	Protection Protection

	// UseIP binds the validation hash to the client IP.
	UseIP bool

	// EncryptionKey is the AES key (16, 24 or 32 bytes).
	EncryptionKey []byte

	// ValidationKey is the shared secret mixed into the validation hash.
	ValidationKey []byte
}

func (c Config) protection() Protection {
	if c.Protection == "" {
		return ProtectionAll
	}
	return c.Protection
}

func (c Config) encrypts() bool {
	p := c.protection()
	return p == ProtectionAll || p == ProtectionEncryption
}

func (c Config) validates() bool {
	p := c.protection()
	return p == ProtectionAll || p == ProtectionValidation
}

// Manager reads and writes the persistent login cookie set.
type Manager struct {
	cfg   Config
	audit audit.Logger
}

// NewManager creates a manager. auditLogger may be nil.
func NewManager(cfg Config, auditLogger audit.Logger) (*Manager, error) {
	if cfg.encrypts() {
		switch len(cfg.EncryptionKey) {
		case 16, 24, 32:
		default:
			return nil, errors.New("encryption key must be 16, 24 or 32 bytes")
		}
	}
	if cfg.validates() && len(cfg.ValidationKey) == 0 {
		return nil, errors.New("validation key is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = 14 * 24 * time.Hour
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Manager{cfg: cfg, audit: auditLogger}, nil
}

// Remember writes the login cookie set for the given credentials. persistent
// selects long-lived cookies; otherwise session cookies are written.
func (m *Manager) Remember(w http.ResponseWriter, r *http.Request, username, password string, persistent bool) error {
	protectedUser, protectedPass := username, password
	if m.cfg.encrypts() {
		var err error
		if protectedUser, err = m.encrypt(username); err != nil {
			return err
		}
		if protectedPass, err = m.encrypt(password); err != nil {
			return err
		}
	} else {
		protectedUser = base64.StdEncoding.EncodeToString([]byte(username))
		protectedPass = base64.StdEncoding.EncodeToString([]byte(password))
	}

	domain := m.cookieDomain(r)
	secure := r.TLS != nil

	m.set(w, cookieUsername, protectedUser, domain, secure, persistent)
	m.set(w, cookiePassword, protectedPass, domain, secure, persistent)
	m.set(w, cookieRememberMe, boolString(persistent), domain, secure, persistent)

	if m.cfg.validates() {
		hash := m.validationHash(protectedUser, protectedPass, ClientIP(r))
		m.set(w, cookieValidation, hash, domain, secure, persistent)
	}

	m.audit.Log(r.Context(), audit.Event{
		Type:      audit.TypeCookieIssued,
		ActorID:   username,
		IPAddress: ClientIP(r),
		Metadata:  map[string]any{"persistent": persistent},
	})
	return nil
}

// Recall recovers the remembered credentials from the request. It returns
// ErrNoCookies when the set is absent and ErrTampered when the validation
// hash does not match the cookie contents and client.
func (m *Manager) Recall(r *http.Request) (username, password string, err error) {
	protectedUser, okU := m.get(r, cookieUsername)
	protectedPass, okP := m.get(r, cookiePassword)
	if !okU || !okP {
		return "", "", ErrNoCookies
	}

	if m.cfg.validates() {
		stored, ok := m.get(r, cookieValidation)
		expected := m.validationHash(protectedUser, protectedPass, ClientIP(r))
		if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(expected)) != 1 {
			m.audit.Log(r.Context(), audit.Event{
				Type:      audit.TypeCookieTampered,
				IPAddress: ClientIP(r),
			})
			return "", "", ErrTampered
		}
	}

	if m.cfg.encrypts() {
		if username, err = m.decrypt(protectedUser); err != nil {
			return "", "", ErrTampered
		}
		if password, err = m.decrypt(protectedPass); err != nil {
			return "", "", ErrTampered
		}
		return username, password, nil
	}

	u, err := base64.StdEncoding.DecodeString(protectedUser)
	if err != nil {
		return "", "", ErrTampered
	}
	p, err := base64.StdEncoding.DecodeString(protectedPass)
	if err != nil {
		return "", "", ErrTampered
	}
	return string(u), string(p), nil
}

// Remembering reports whether the request carries a persistent login.
func (m *Manager) Remembering(r *http.Request) bool {
	v, ok := m.get(r, cookieRememberMe)
	return ok && v == "true"
}

// Forget clears the whole cookie set, using the same domain resolution that
// wrote it so the expired cookies actually match.
func (m *Manager) Forget(w http.ResponseWriter, r *http.Request) {
	domain := m.cookieDomain(r)
	secure := r.TLS != nil
	for _, name := range []string{cookieUsername, cookiePassword, cookieRememberMe, cookieValidation} {
		http.SetCookie(w, &http.Cookie{
			Name:     m.cfg.Prefix + name,
			Value:    "",
			Path:     m.cfg.Path,
			Domain:   domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
		})
	}
	m.audit.Log(r.Context(), audit.Event{
		Type:      audit.TypeCookieCleared,
		IPAddress: ClientIP(r),
	})
}

func (m *Manager) set(w http.ResponseWriter, name, value, domain string, secure, persistent bool) {
	c := &http.Cookie{
		Name:     m.cfg.Prefix + name,
		Value:    value,
		// Values go out double-quoted; get trims the quotes on the way back.
		Quoted:   true,
		Path:     m.cfg.Path,
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
	}
	if persistent {
		c.MaxAge = int(m.cfg.Lifetime / time.Second)
	}
	http.SetCookie(w, c)
}

func (m *Manager) get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(m.cfg.Prefix + name)
	if err != nil || c.Value == "" {
		return "", false
	}
	// Legacy clients may send the value surrounded by quotes.
	return strings.Trim(c.Value, `"`), true
}

// cookieDomain returns the first configured domain generalization the request
// host falls under. Both sides are conformed with a leading dot so that
// "wiki.example.com" and "example.com" match ".example.com" alike.
func (m *Manager) cookieDomain(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	server := conformDomain(host)
	for _, d := range m.cfg.Domains {
		d = conformDomain(d)
		if strings.HasSuffix(server, d) {
			return d
		}
	}
	return ""
}

func conformDomain(d string) string {
	if d != "" && !strings.HasPrefix(d, ".") {
		return "." + d
	}
	return d
}

// validationHash keys the protected credential pair (and optionally the
// client IP) with the validation secret.
func (m *Manager) validationHash(username, password, clientIP string) string {
	var b strings.Builder
	b.WriteString(username)
	b.WriteString(fieldSeparator)
	b.WriteString(password)
	b.WriteString(fieldSeparator)
	if m.cfg.UseIP {
		b.WriteString(clientIP)
		b.WriteString(fieldSeparator)
	}
	b.Write(m.cfg.ValidationKey)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// encrypt returns the AES-CBC ciphertext of text with a random IV prepended,
// base64 encoded. The padding character is replaced with an underscore so the
// value survives cookie handling in older user agents.
func (m *Manager) encrypt(text string) (string, error) {
	block, err := aes.NewCipher(m.cfg.EncryptionKey)
	if err != nil {
		return "", err
	}

	plain := pkcs7Pad([]byte(text), block.BlockSize())
	out := make([]byte, block.BlockSize()+len(plain))
	iv := out[:block.BlockSize()]
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[block.BlockSize():], plain)

	return strings.ReplaceAll(base64.StdEncoding.EncodeToString(out), "=", "_"), nil
}

func (m *Manager) decrypt(text string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(text, "_", "="))
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(m.cfg.EncryptionKey)
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	if len(raw) < 2*bs || len(raw)%bs != 0 {
		return "", errors.New("malformed ciphertext")
	}

	plain := make([]byte, len(raw)-bs)
	cipher.NewCBCDecrypter(block, raw[:bs]).CryptBlocks(plain, raw[bs:])

	return string(pkcs7Unpad(plain, bs)), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	pad := make([]byte, n)
	for i := range pad {
		pad[i] = byte(n)
	}
	return append(b, pad...)
}

func pkcs7Unpad(b []byte, blockSize int) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		slog.Debug("invalid cookie padding")
		return b
	}
	return b[:len(b)-n]
}

// ClientIP returns the originating client address: the first entry of
// X-Forwarded-For when present, the transport peer otherwise.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
