package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
opml_path: /etc/heartbeat/feeds.opml
output_dir: /var/lib/heartbeat
fetch:
  hours: 48
  max_workers_percent: 0.5
normalize:
  content_limit: 5000
source_weights:
  Hacker News: 0.9
github:
  user: someone
  repo: daily-digest
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/heartbeat/feeds.opml", cfg.OPMLPath)
	assert.Equal(t, "/var/lib/heartbeat", cfg.OutputDir)
	assert.Equal(t, 48, cfg.Fetch.Hours)
	assert.Equal(t, 0.5, *cfg.Fetch.MaxWorkersPercent)
	assert.Equal(t, 5000, cfg.Normalize.ContentLimit)
	assert.Equal(t, 0.9, cfg.SourceWeights["Hacker News"])
	assert.Equal(t, "someone", cfg.GitHub.User)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "0 4 * * *", cfg.Schedule)
	assert.Equal(t, 24, cfg.Fetch.Hours)
	assert.Equal(t, 0.8, *cfg.Fetch.MaxWorkersPercent)
	assert.Equal(t, 30*time.Second, cfg.Fetch.SourceTimeout)
	assert.Equal(t, 15000, cfg.Normalize.ContentLimit)
	assert.Equal(t, 200, cfg.Normalize.WordsPerMinute)
	assert.Equal(t, "en", cfg.Normalize.FallbackLanguage)
	assert.Equal(t, 0.4, *cfg.Normalize.BaseScore)
	assert.Equal(t, 1, cfg.Dedup.Days, "derived from the 24h fetch window")
	assert.Equal(t, "GITHUB_TOKEN", cfg.GitHub.TokenEnv)
	assert.Equal(t, "main", cfg.GitHub.Branch)
}

func TestLoad_ExplicitZeroKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
fetch:
  max_workers_percent: 0
normalize:
  base_score: 0
`))
	require.NoError(t, err)

	// zero is a legal setting, it must not be mistaken for unset
	assert.Equal(t, 0.0, *cfg.Fetch.MaxWorkersPercent)
	assert.Equal(t, 0.0, *cfg.Normalize.BaseScore)
}

func TestLoad_DedupDaysFollowFetchWindow(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fetch:\n  hours: 72\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Dedup.Days)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HB_TEST_OPML", "/tmp/expanded.opml")
	cfg, err := Load(writeConfig(t, "opml_path: ${HB_TEST_OPML}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.opml", cfg.OPMLPath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "fetch: [not a map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"workers percent above 1", "fetch:\n  max_workers_percent: 1.5\n", "max_workers_percent"},
		{"negative content limit", "normalize:\n  content_limit: -1\n", "content_limit"},
		{"bad source weight", "source_weights:\n  Foo: 2.0\n", "source_weights"},
		{"llm endpoint without model", "llm:\n  endpoint: http://localhost:8080/v1\n", "llm.model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_PublishEnabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.PublishEnabled())

	cfg.GitHub.User = "someone"
	cfg.GitHub.Repo = "digest"
	assert.False(t, cfg.PublishEnabled(), "no token in env")

	t.Setenv("GITHUB_TOKEN", "secret")
	assert.True(t, cfg.PublishEnabled())
	assert.Equal(t, "secret", cfg.Token())
}
