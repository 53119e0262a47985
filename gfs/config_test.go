package gfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gfs.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
master_addrs = ["127.0.0.1:7777", "127.0.0.1:7778"]
use_authentication = true
authentication_file_path = "auth.txt"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, []ServerAddress{"127.0.0.1:7777", "127.0.0.1:7778"}, cfg.MasterAddrs)
	require.True(t, cfg.UseAuthentication)
	require.Equal(t, int64(DefaultChunkSize), cfg.ChunkSize)
	require.Equal(t, DefaultMaxAllowedChunks, cfg.MaxAllowedChunks)
	require.Equal(t, DefaultReplicationFactor, cfg.ReplicationFactor)
	require.Equal(t, DefaultHeartbeatFailureThreshold, cfg.HeartbeatFailureThreshold)
	require.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval())
	require.Equal(t, DefaultOTPValidDuration, cfg.OTPValidDuration())
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `
master_addrs = ["a:1"]
chunk_size = 4096
replication_factor = 2
max_allowed_chunks = 5
heartbeat_interval = 1.5
otp_valid_duration = 30
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, int64(4096), cfg.ChunkSize)
	require.Equal(t, 2, cfg.ReplicationFactor)
	require.Equal(t, 5, cfg.MaxAllowedChunks)
	require.Equal(t, 1500*time.Millisecond, cfg.HeartbeatInterval())
	require.Equal(t, 30*time.Second, cfg.OTPValidDuration())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}
