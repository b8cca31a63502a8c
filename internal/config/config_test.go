package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

business:
  salon_name: "GetTwisted Hair Studios"
  phone: "+15550100"
  timezone: "America/New_York"

segmentation:
  vip_min_visits: 12
  vip_min_spend: 800
  regular_min_visits: 4
  recency_window_days: 60
  lapsed_after_days: 120

compliance:
  quiet_start_hour: 21
  quiet_end_hour: 8
  max_attempts_per_day: 3
  retention_days: 180
  opt_out_keywords: ["STOP", "BASTA"]
  cascade_opt_out: true

campaign:
  slot_hours: [10, 14]
  dispatch_workers: 8
  dispatch_per_second: 2.5
  max_retries: 1
  retry_cooldown_seconds: 600
  default_channel: "sms"

transport:
  base_url: "https://api.example.com"
  account_sid: "AC123"
  timeout_seconds: 45
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "GetTwisted Hair Studios", cfg.Business.SalonName)
	assert.Equal(t, "America/New_York", cfg.Business.Timezone)

	assert.Equal(t, 12, cfg.Segmentation.VIPMinVisits)
	assert.Equal(t, 800.0, cfg.Segmentation.VIPMinSpend)
	assert.Equal(t, 4, cfg.Segmentation.RegularMinVisits)
	assert.Equal(t, 60, cfg.Segmentation.RecencyWindowDays)
	assert.Equal(t, 120, cfg.Segmentation.LapsedAfterDays)

	assert.Equal(t, 21, cfg.Compliance.QuietStartHour)
	assert.Equal(t, 8, cfg.Compliance.QuietEndHour)
	assert.Equal(t, 3, cfg.Compliance.MaxAttemptsPerDay)
	assert.Equal(t, 180, cfg.Compliance.RetentionDays)
	assert.Equal(t, []string{"STOP", "BASTA"}, cfg.Compliance.OptOutKeywords)
	assert.True(t, cfg.Compliance.CascadeOptOut)

	assert.Equal(t, []int{10, 14}, cfg.Campaign.SlotHours)
	assert.Equal(t, 8, cfg.Campaign.DispatchWorkers)
	assert.Equal(t, 2.5, cfg.Campaign.DispatchPerSecond)
	assert.Equal(t, 1, cfg.Campaign.MaxRetries)
	assert.Equal(t, "sms", cfg.Campaign.DefaultChannel)

	assert.Equal(t, "https://api.example.com", cfg.Transport.BaseURL)
	assert.Equal(t, 45, cfg.Transport.TimeoutSeconds)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8081\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 20, cfg.Compliance.QuietStartHour)
	assert.Equal(t, 9, cfg.Compliance.QuietEndHour)
	assert.Equal(t, 2, cfg.Compliance.MaxAttemptsPerDay)
	assert.Equal(t, 365, cfg.Compliance.RetentionDays)
	assert.Equal(t, []string{"STOP", "UNSUBSCRIBE", "REMOVE", "QUIT"}, cfg.Compliance.OptOutKeywords)
	assert.False(t, cfg.Compliance.CascadeOptOut)
	assert.Equal(t, []int{10, 14}, cfg.Campaign.SlotHours)
	assert.Equal(t, 2, cfg.Campaign.MaxRetries)
	assert.Equal(t, "call", cfg.Campaign.DefaultChannel)
	assert.Equal(t, "America/New_York", cfg.Business.Timezone)
	assert.Equal(t, "0 8 * * *", cfg.Reports.DailyCron)
}

func TestLoadInvalidSlotHour(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("campaign:\n  slot_hours: [10, 25]\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadInvalidChannel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("campaign:\n  default_channel: \"fax\"\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644))

	t.Setenv("DATABASE_URL", "postgres://test/outreach")
	t.Setenv("TRANSPORT_AUTH_TOKEN", "secret-token")
	t.Setenv("MAX_ATTEMPTS_PER_DAY", "5")
	t.Setenv("OPT_OUT_KEYWORDS", "STOP, CANCEL ,")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://test/outreach", cfg.Database.URL)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "secret-token", cfg.Transport.AuthToken)
	assert.Equal(t, 5, cfg.Compliance.MaxAttemptsPerDay)
	assert.Equal(t, []string{"STOP", "CANCEL"}, cfg.Compliance.OptOutKeywords)
}

func TestBusinessLocation(t *testing.T) {
	c := BusinessConfig{Timezone: "America/Chicago"}
	loc := c.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "America/Chicago", loc.String())

	bad := BusinessConfig{Timezone: "Not/AZone"}
	assert.Equal(t, "UTC", bad.Location().String())
}
