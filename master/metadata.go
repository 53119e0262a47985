package master

import (
	"sort"
	"sync"
	"time"

	"gfs"
)

// chunkDescriptor is the master's authoritative record for one chunk:
// its replica set and a monotone version bumped on every replica-set
// change.
type chunkDescriptor struct {
	handle  gfs.ChunkHandle
	servers []gfs.ServerAddress
	version int64
}

func (c *chunkDescriptor) info() gfs.ChunkInfo {
	addrs := make([]gfs.ServerAddress, len(c.servers))
	copy(addrs, c.servers)
	return gfs.ChunkInfo{ChunkHandle: c.handle, ServerAddrs: addrs, Version: c.version}
}

func (c *chunkDescriptor) hasServer(addr gfs.ServerAddress) bool {
	for _, a := range c.servers {
		if a == addr {
			return true
		}
	}
	return false
}

// chunkServerInfo tracks what one chunk node is believed to hold.
type chunkServerInfo struct {
	chunks map[gfs.ChunkHandle]bool
}

// metadata is the master's complete replicated state aggregate (spec §3),
// guarded by a single writer-priority lock: sync.RWMutex gives queued
// writers priority over new readers in the Go runtime, which is exactly
// the coarse-locking model the spec calls for. heartbeats is the one
// field that is NOT part of the replicated snapshot (it's a local
// liveness view only).
type metadata struct {
	mu sync.RWMutex

	fileChunks map[string][]*chunkDescriptor      // file name -> ordered chunk list
	chunkMap   map[gfs.ChunkHandle]*chunkDescriptor // chunk id -> authoritative descriptor
	chunkServers map[gfs.ServerAddress]*chunkServerInfo

	heartbeats map[gfs.ServerAddress]time.Time // not replicated

	authTable  map[string]string // username -> argon2id PHC hash
	activeOTPs map[string]gfs.OTPEntry

	seq int64
}

func newMetadata() *metadata {
	return &metadata{
		fileChunks:   make(map[string][]*chunkDescriptor),
		chunkMap:     make(map[gfs.ChunkHandle]*chunkDescriptor),
		chunkServers: make(map[gfs.ServerAddress]*chunkServerInfo),
		heartbeats:   make(map[gfs.ServerAddress]time.Time),
		authTable:    make(map[string]string),
		activeOTPs:   make(map[string]gfs.OTPEntry),
	}
}

// snapshotLocked must be called with mu held (read or write lock).
func (m *metadata) snapshotLocked() gfs.MetadataSnapshot {
	fc := make(map[string][]gfs.ChunkInfo, len(m.fileChunks))
	for name, chunks := range m.fileChunks {
		infos := make([]gfs.ChunkInfo, len(chunks))
		for i, c := range chunks {
			infos[i] = c.info()
		}
		fc[name] = infos
	}
	cm := make(map[gfs.ChunkHandle]gfs.ChunkInfo, len(m.chunkMap))
	for h, c := range m.chunkMap {
		cm[h] = c.info()
	}
	load := make(map[gfs.ServerAddress][]gfs.ChunkHandle, len(m.chunkServers))
	for addr, info := range m.chunkServers {
		handles := make([]gfs.ChunkHandle, 0, len(info.chunks))
		for h := range info.chunks {
			handles = append(handles, h)
		}
		sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
		load[addr] = handles
	}
	auth := make(map[string]string, len(m.authTable))
	for u, p := range m.authTable {
		auth[u] = p
	}
	otps := make(map[string]gfs.OTPEntry, len(m.activeOTPs))
	for u, e := range m.activeOTPs {
		otps[u] = e
	}
	return gfs.MetadataSnapshot{
		Seq:        m.seq,
		FileChunks: fc,
		ChunkMap:   cm,
		ChunkLoad:  load,
		AuthTable:  auth,
		ActiveOTPs: otps,
	}
}

// applySnapshot overwrites local metadata with a received snapshot. Used
// by shadow masters on UpdateMetadata. heartbeats is untouched: it is a
// local liveness view, not part of the replicated state.
func (m *metadata) applySnapshot(snap gfs.MetadataSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fileChunks := make(map[string][]*chunkDescriptor, len(snap.FileChunks))
	chunkMap := make(map[gfs.ChunkHandle]*chunkDescriptor, len(snap.ChunkMap))
	for h, info := range snap.ChunkMap {
		d := &chunkDescriptor{handle: h, servers: append([]gfs.ServerAddress{}, info.ServerAddrs...), version: info.Version}
		chunkMap[h] = d
	}
	for name, infos := range snap.FileChunks {
		list := make([]*chunkDescriptor, len(infos))
		for i, info := range infos {
			if d, ok := chunkMap[info.ChunkHandle]; ok {
				list[i] = d
			} else {
				list[i] = &chunkDescriptor{handle: info.ChunkHandle, servers: append([]gfs.ServerAddress{}, info.ServerAddrs...), version: info.Version}
				chunkMap[info.ChunkHandle] = list[i]
			}
		}
		fileChunks[name] = list
	}
	chunkServers := make(map[gfs.ServerAddress]*chunkServerInfo, len(snap.ChunkLoad))
	for addr, handles := range snap.ChunkLoad {
		set := make(map[gfs.ChunkHandle]bool, len(handles))
		for _, h := range handles {
			set[h] = true
		}
		chunkServers[addr] = &chunkServerInfo{chunks: set}
	}
	auth := make(map[string]string, len(snap.AuthTable))
	for u, p := range snap.AuthTable {
		auth[u] = p
	}
	otps := make(map[string]gfs.OTPEntry, len(snap.ActiveOTPs))
	for u, e := range snap.ActiveOTPs {
		otps[u] = e
	}

	m.fileChunks = fileChunks
	m.chunkMap = chunkMap
	m.chunkServers = chunkServers
	m.authTable = auth
	m.activeOTPs = otps
	m.seq = snap.Seq
}

// registerServerLocked must be called with mu held for writing.
func (m *metadata) registerServerLocked(addr gfs.ServerAddress) {
	// A re-registration (e.g. after restart) discards the prior entry,
	// per the lifecycle rule in spec §3.
	m.chunkServers[addr] = &chunkServerInfo{chunks: make(map[gfs.ChunkHandle]bool)}
}

// loadLocked returns how many chunks addr currently holds, per metadata.
func (m *metadata) loadLocked(addr gfs.ServerAddress) int {
	info, ok := m.chunkServers[addr]
	if !ok {
		return 0
	}
	return len(info.chunks)
}
