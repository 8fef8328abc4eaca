package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExecutorRetryPolicyToTypes(t *testing.T) {
	cfg := DefaultExecutor()
	rp := cfg.RetryPolicy.ToTypes()

	assert.Equal(t, 5, rp.MaxAttempts)
	assert.Equal(t, 1*time.Second, rp.MinDelay)
	assert.Equal(t, 30*time.Second, rp.MaxDelay)
	assert.Equal(t, 2.0, rp.Multiplier)
	assert.Equal(t, 0.2, rp.Jitter)
}

func TestLoadExecutorOverridesBaseFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "executor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pod_id: executor-1
listen_addr: 0.0.0.0:9999
`), 0o644))

	cfg, err := LoadExecutor(path, DefaultExecutor())
	require.NoError(t, err)

	assert.Equal(t, "executor-1", cfg.PodID)
	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	// Fields the file omits keep the base's defaults.
	assert.Equal(t, "0.0.0.0:9190", cfg.HealthAddr)
	assert.Equal(t, 64, cfg.NumberOfShards)
}

func TestLoadExecutorMissingFile(t *testing.T) {
	_, err := LoadExecutor(filepath.Join(t.TempDir(), "missing.yaml"), DefaultExecutor())
	require.Error(t, err)
}

func TestLoadShardManagerOverridesBaseFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardmanager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pod_id: shardmanager-1
number_of_shards: 128
`), 0o644))

	cfg, err := LoadShardManager(path, DefaultShardManager())
	require.NoError(t, err)

	assert.Equal(t, "shardmanager-1", cfg.PodID)
	assert.Equal(t, 128, cfg.NumberOfShards)
	assert.Equal(t, "0.0.0.0:9091", cfg.ListenAddr)
}

func TestBuildStorageMemory(t *testing.T) {
	indexed, blob, err := BuildStorage(BackendMemory, "", "")
	require.NoError(t, err)
	require.NotNil(t, indexed)
	require.NotNil(t, blob)
	defer indexed.Close()
	defer blob.Close()
}

func TestBuildStorageBolt(t *testing.T) {
	dir := t.TempDir()
	indexed, blob, err := BuildStorage(BackendBolt, dir, "")
	require.NoError(t, err)
	require.NotNil(t, indexed)
	require.NotNil(t, blob)
	indexed.Close()
	blob.Close()
}

func TestBuildStorageRedisRequiresAddr(t *testing.T) {
	_, _, err := BuildStorage(BackendRedis, t.TempDir(), "")
	require.Error(t, err)
}

func TestBuildStorageUnknownBackend(t *testing.T) {
	_, _, err := BuildStorage(StorageBackend("bogus"), t.TempDir(), "")
	require.Error(t, err)
}

func TestBuildOplogsDisabledUsesPrimaryTierOnly(t *testing.T) {
	indexed, blob, err := BuildStorage(BackendMemory, "", "")
	require.NoError(t, err)
	defer indexed.Close()
	defer blob.Close()

	oplogs := BuildOplogs(indexed, blob, OplogArchive{Enabled: false})
	require.NotNil(t, oplogs)
}

func TestBuildOplogsArchiveEnabledWiresLayeredOplog(t *testing.T) {
	indexed, blob, err := BuildStorage(BackendMemory, "", "")
	require.NoError(t, err)
	defer indexed.Close()
	defer blob.Close()

	oplogs := BuildOplogs(indexed, blob, OplogArchive{Enabled: true, MaxEntries: 100})
	require.NotNil(t, oplogs)
}
