// Package gfs holds the types, RPC argument structs, and configuration
// shared by the master, chunkserver, and client packages.
package gfs

import (
	"fmt"
	"time"
)

// ServerAddress is a "host:port" string identifying a master or chunkserver.
type ServerAddress string

// ChunkIndex is the 0-based position of a chunk within a file.
type ChunkIndex int64

// ChunkHandle is the chunk identifier "<file_name>_chunk_<index>".
// It is derivable from (file_name, index) alone.
type ChunkHandle string

// NewChunkHandle builds the canonical handle for a (file, index) pair.
func NewChunkHandle(file string, index ChunkIndex) ChunkHandle {
	return ChunkHandle(fmt.Sprintf("%s_chunk_%d", file, index))
}

// Offset is a byte offset or length within a chunk.
type Offset int64

// Default tuning values, used when a config file omits an option.
const (
	DefaultChunkSize                 = 64 << 20 // 64 MiB
	DefaultMaxAllowedChunks           = 256
	DefaultReplicationFactor          = 3
	DefaultHeartbeatInterval          = 2 * time.Second
	DefaultShadowMasterPingInterval   = 2 * time.Second
	DefaultCronInterval               = 5 * time.Second
	DefaultHeartbeatFailureThreshold  = 3
	DefaultOTPValidDuration           = 5 * time.Minute
	DefaultRPCTimeout                 = 3 * time.Second
)
