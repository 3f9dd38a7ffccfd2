package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"remember_token", true},
		{"secret", true},
		{"encryption_key", true},
		{"hash", true},
		{"password_hash", true},
		{"credential", true},
		{"validation_hash", true},
		{"user_id", false},
		{"wiki_id", false},
		{"document", false},
		{"status", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

// TestPurpose: Validates that every logged event carries a unique identifier
// so individual audit records can be referenced and correlated.
// Scope: Unit Test
// Security: Audit Trail Integrity (CWE-778)
// Expected: An event logged without an ID gets a generated UUID in the
// event_id attribute.
// Test Case ID: AUD-02
func TestAudit_EventIDAssigned(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	NewSlogLogger().Log(context.Background(), Event{Type: TypeLoginSuccess})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	id, _ := rec["event_id"].(string)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("event_id %q is not a UUID: %v", id, err)
	}
}
