package gfs

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the parsed form of the cluster's TOML configuration file,
// covering every option named in the spec's configuration table.
type Config struct {
	MasterAddrs []ServerAddress `toml:"master_addrs"`

	HeartbeatIntervalSeconds         float64 `toml:"heartbeat_interval"`
	ShadowMasterPingIntervalSeconds  float64 `toml:"shadow_master_ping_interval"`
	CronIntervalSeconds              float64 `toml:"cron_interval"`
	HeartbeatFailureThreshold        int     `toml:"heartbeat_failure_threshold"`

	ChunkSize        int64 `toml:"chunk_size"`
	MaxAllowedChunks int   `toml:"max_allowed_chunks"`
	ReplicationFactor int  `toml:"replication_factor"`

	OTPValidDurationSeconds float64 `toml:"otp_valid_duration"`

	UseAuthentication       bool   `toml:"use_authentication"`
	AuthenticationFilePath  string `toml:"authentication_file_path"`

	DataPath string `toml:"data_path"`
	LogPath  string `toml:"log_path"`
}

// HeartbeatInterval returns the configured heartbeat period as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return secondsOrDefault(c.HeartbeatIntervalSeconds, DefaultHeartbeatInterval)
}

// ShadowMasterPingInterval returns the configured shadow-ping period.
func (c *Config) ShadowMasterPingInterval() time.Duration {
	return secondsOrDefault(c.ShadowMasterPingIntervalSeconds, DefaultShadowMasterPingInterval)
}

// CronInterval returns the configured master background-tick period.
func (c *Config) CronInterval() time.Duration {
	return secondsOrDefault(c.CronIntervalSeconds, DefaultCronInterval)
}

// OTPValidDuration returns the configured OTP lifetime.
func (c *Config) OTPValidDuration() time.Duration {
	return secondsOrDefault(c.OTPValidDurationSeconds, DefaultOTPValidDuration)
}

func secondsOrDefault(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

// applyDefaults fills in zero-valued fields with the package defaults so
// a minimal config file is usable.
func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxAllowedChunks <= 0 {
		c.MaxAllowedChunks = DefaultMaxAllowedChunks
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = DefaultReplicationFactor
	}
	if c.HeartbeatFailureThreshold <= 0 {
		c.HeartbeatFailureThreshold = DefaultHeartbeatFailureThreshold
	}
	if c.DataPath == "" {
		c.DataPath = "./data"
	}
}

// LoadConfig reads and parses a TOML configuration file, applying
// defaults for any option it omits.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}
