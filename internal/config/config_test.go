package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emailmakers.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
version: "1.0"
campaigns_dir: /var/campaigns
retry:
  max_attempts: 5
  base_delay_ms: 100
  max_delay_ms: 2000
quality:
  min_score: 90
  require_approval: false
events:
  redis_addr: localhost:6379
stage_timeout_seconds: 60
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/campaigns", cfg.CampaignsDir)
		assert.Equal(t, 5, *cfg.Retry.MaxAttempts)
		assert.Equal(t, 90, *cfg.Quality.MinScore)
		assert.False(t, *cfg.Quality.RequireApproval)
		assert.Equal(t, "localhost:6379", cfg.Events.RedisAddr)
		assert.Equal(t, "default", cfg.Events.Instance, "instance defaults when redis is configured")
		assert.Equal(t, time.Minute, cfg.StageTimeout())
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)

		assert.Equal(t, "campaigns", cfg.CampaignsDir)
		assert.Equal(t, 3, *cfg.Retry.MaxAttempts)
		assert.Equal(t, 50, *cfg.Retry.BaseDelayMs)
		assert.Equal(t, 1000, *cfg.Retry.MaxDelayMs)
		assert.Equal(t, 80, *cfg.Quality.MinScore)
		assert.True(t, *cfg.Quality.RequireApproval)
		assert.Equal(t, 300, *cfg.StageTimeoutSeconds)
	})

	t.Run("malformed YAML is a configuration error", func(t *testing.T) {
		path := writeConfig(t, "version: [unclosed")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, campaign.IsKind(err, campaign.KindConfiguration))
	})

	t.Run("unsupported version rejected", func(t *testing.T) {
		path := writeConfig(t, "version: \"2.0\"\ncampaigns_dir: campaigns\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported version")
	})

	t.Run("invalid retry tuning rejected", func(t *testing.T) {
		path := writeConfig(t, `
version: "1.0"
campaigns_dir: campaigns
retry:
  max_attempts: 0
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts")
	})

	t.Run("environment overrides win", func(t *testing.T) {
		t.Setenv(EnvCampaignsDir, "/env/campaigns")
		t.Setenv(EnvMaxAttempts, "7")
		t.Setenv(EnvRedisAddr, "envhost:6379")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)

		assert.Equal(t, "/env/campaigns", cfg.CampaignsDir)
		assert.Equal(t, 7, *cfg.Retry.MaxAttempts)
		assert.Equal(t, "envhost:6379", cfg.Events.RedisAddr)
	})

	t.Run("non-integer retry override rejected", func(t *testing.T) {
		t.Setenv(EnvMaxAttempts, "many")
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.Error(t, err)
		assert.True(t, campaign.IsKind(err, campaign.KindConfiguration))
	})
}

func TestCheckCredentials(t *testing.T) {
	t.Run("no required credentials passes", func(t *testing.T) {
		assert.NoError(t, Default().CheckCredentials())
	})

	t.Run("present credentials pass", func(t *testing.T) {
		t.Setenv("EMAILMAKERS_TEST_TOKEN", "secret")
		cfg := Default()
		cfg.Credentials = &CredentialsConfig{Required: []string{"EMAILMAKERS_TEST_TOKEN"}}
		assert.NoError(t, cfg.CheckCredentials())
	})

	t.Run("missing credentials raise a configuration error naming them", func(t *testing.T) {
		cfg := Default()
		cfg.Credentials = &CredentialsConfig{Required: []string{"EMAILMAKERS_ABSENT_A", "EMAILMAKERS_ABSENT_B"}}

		err := cfg.CheckCredentials()
		require.Error(t, err)
		assert.True(t, campaign.IsKind(err, campaign.KindConfiguration))
		assert.Contains(t, err.Error(), "EMAILMAKERS_ABSENT_A")
		assert.Contains(t, err.Error(), "EMAILMAKERS_ABSENT_B")
	})
}

func TestRetryPolicy(t *testing.T) {
	cfg := Default()
	policy := cfg.RetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, time.Second, policy.MaxDelay)
	assert.NoError(t, policy.Validate())
}
