package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikiforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("WIKIFORGE_CONFIG", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COOKIE_VALIDATION_KEY", "vkey")
	t.Setenv("COOKIE_ENCRYPTION_KEY", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.D())
	assert.Equal(t, "xwiki", cfg.Wikis.Main)
	assert.Equal(t, "form", cfg.Auth.Mechanism)
	assert.Equal(t, 30, cfg.Rights.MaxRecursiveSpaceChecks)
	assert.Equal(t, 14*24*time.Hour, cfg.Cookie.Lifetime.D())
}

func TestLoadYAMLOverlay(t *testing.T) {
	writeConfigFile(t, `
server:
  port: "9090"
  read_timeout: 30s
wikis:
  main: corp
  descriptors:
    - id: corp
      owner: XWiki.Admin
    - id: archive
      readonly: true
cookie:
  validation_key: vkey
  encryption_key: 0123456789abcdef
  use_ip: true
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.D())
	assert.Equal(t, "corp", cfg.Wikis.Main)
	require.Len(t, cfg.Wikis.Descriptors, 2)
	assert.Equal(t, "XWiki.Admin", cfg.Wikis.Descriptors[0].Owner)
	assert.True(t, cfg.Wikis.Descriptors[1].ReadOnly)
	assert.True(t, cfg.Cookie.UseIP)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	writeConfigFile(t, `
server:
  port: "9090"
cookie:
  validation_key: vkey
  encryption_key: 0123456789abcdef
`)
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing validation key", func(t *testing.T) {
		t.Setenv("COOKIE_ENCRYPTION_KEY", "0123456789abcdef")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("db password required with db host", func(t *testing.T) {
		t.Setenv("COOKIE_VALIDATION_KEY", "vkey")
		t.Setenv("COOKIE_ENCRYPTION_KEY", "0123456789abcdef")
		t.Setenv("DB_HOST", "localhost")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown auth mechanism", func(t *testing.T) {
		t.Setenv("COOKIE_VALIDATION_KEY", "vkey")
		t.Setenv("COOKIE_ENCRYPTION_KEY", "0123456789abcdef")
		t.Setenv("AUTH_MECHANISM", "kerberos")
		_, err := Load()
		assert.Error(t, err)
	})
}
