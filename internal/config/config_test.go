package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "stream:raw_events", cfg.Streams.RawEvents)
	assert.Equal(t, 5*time.Minute, cfg.Streams.ReclaimIdle)
	assert.Equal(t, 20*time.Second, cfg.Streams.RenewInterval)
	assert.Equal(t, 10*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 20, cfg.Queues.MaxConsecutivePriority)
	assert.Equal(t, 7*24*time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, 7, cfg.Pipeline.BreakingThreshold)
	assert.Equal(t, 150, cfg.Indexing.ShortDocWords)
	assert.Equal(t, 700, cfg.Indexing.MaxChunkWords)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, int32(768), cfg.Reasoning.EmbeddingDim)
	assert.NotEmpty(t, cfg.Streams.ConsumerName)
}

func TestLoadConfigFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
streams:
  consumer_name: worker-a
  reclaim_idle: 240s
pipeline:
  impact_confidence_threshold: 0.75
reasoning:
  api_key: from-file
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "worker-a", cfg.Streams.ConsumerName)
	assert.Equal(t, 240*time.Second, cfg.Streams.ReclaimIdle)
	assert.Equal(t, 0.75, cfg.Pipeline.ImpactConfidenceThreshold)
	assert.Equal(t, "from-env", cfg.Reasoning.APIKey)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	// 未出现在文件中的项保留默认值
	assert.Equal(t, "queue:fixtures:priority", cfg.Queues.Priority)
}

func TestLoadConfigFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0o644))
	_, err := LoadConfigFrom(dir)
	assert.Error(t, err)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, LogConfig{GormLevel: "SILENT"}.GormLogLevel())
	assert.Equal(t, logger.Info, LogConfig{GormLevel: "info"}.GormLogLevel())
	assert.Equal(t, logger.Warn, LogConfig{}.GormLogLevel())
}

func TestWorstReasoningCall(t *testing.T) {
	cfg := &Config{
		Retry:     RetryConfig{MaxAttempts: 3, BackoffBase: 2 * time.Second, BackoffMax: 30 * time.Second, Multiplier: 2, Jitter: 0.25},
		Reasoning: ReasoningConfig{Timeout: time.Minute},
	}
	// 3 × 60s + (2s + 4s) × 1.25
	assert.Equal(t, 187500*time.Millisecond, cfg.WorstReasoningCall())

	cfg.Retry.BackoffBase = 20 * time.Second
	// 第二次退避 40s 被截断到 30s
	assert.Equal(t, 3*time.Minute+(50*time.Second)*5/4, cfg.WorstReasoningCall())
}

func TestLoadConfigFrom_ReclaimIdleMustCoverReasoningCall(t *testing.T) {
	dir := t.TempDir()
	yaml := `
streams:
  reclaim_idle: 60s
reasoning:
  timeout: 60s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	_, err := LoadConfigFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streams.reclaim_idle")
}

func TestValidate_RenewIntervalBelowReclaimIdle(t *testing.T) {
	cfg := &Config{
		Streams:   StreamConfig{ReclaimIdle: time.Minute, RenewInterval: time.Minute},
		Retry:     RetryConfig{MaxAttempts: 1},
		Reasoning: ReasoningConfig{Timeout: 10 * time.Second},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streams.renew_interval")

	cfg.Streams.RenewInterval = 20 * time.Second
	assert.NoError(t, cfg.Validate())
}
