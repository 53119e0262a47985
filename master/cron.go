package master

import (
	"time"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// cronTick is the active master's periodic background task (spec §4.3):
// detect chunk nodes silent beyond the failure threshold, remove them
// from metadata, and drive re-replication for every chunk they affected.
func (m *Master) cronTick() {
	dead := m.detectDeadServers()
	for _, addr := range dead {
		log.Warningf("chunk server %v declared dead", addr)
		m.removeServer(addr)
	}
	m.reReplicate()
}

// detectDeadServers returns addresses whose last heartbeat is older than
// heartbeat_failure_threshold * heartbeat_interval.
func (m *Master) detectDeadServers() []gfs.ServerAddress {
	threshold := time.Duration(m.cfg.HeartbeatFailureThreshold) * m.cfg.HeartbeatInterval()
	now := time.Now()

	m.meta.mu.RLock()
	defer m.meta.mu.RUnlock()

	var dead []gfs.ServerAddress
	for addr, last := range m.meta.heartbeats {
		if now.Sub(last) > threshold {
			dead = append(dead, addr)
		}
	}
	return dead
}

// removeServer strips a dead node from every chunk descriptor's replica
// set and from chunk_servers/heartbeats, then propagates the result.
func (m *Master) removeServer(addr gfs.ServerAddress) {
	m.meta.mu.Lock()
	for _, d := range m.meta.chunkMap {
		if !d.hasServer(addr) {
			continue
		}
		filtered := d.servers[:0]
		for _, s := range d.servers {
			if s != addr {
				filtered = append(filtered, s)
			}
		}
		d.servers = filtered
		d.version++
	}
	delete(m.meta.chunkServers, addr)
	delete(m.meta.heartbeats, addr)
	m.meta.seq++
	snap := m.meta.snapshotLocked()
	m.meta.mu.Unlock()

	m.propagate(snap)
}

// reReplicate asks a surviving holder of every under-replicated chunk to
// stream it to the least-loaded eligible node, and on confirmation
// updates metadata and re-propagates. Chunks with no eligible candidate
// stay under-replicated for the next tick.
func (m *Master) reReplicate() {
	m.meta.mu.RLock()
	plans := m.meta.reReplicationTargetsLocked(m.cfg.ReplicationFactor, m.cfg.MaxAllowedChunks)
	m.meta.mu.RUnlock()

	for _, p := range plans {
		fileName, index := fileAndIndex(p.handle)
		log.Warningf("re-replicating chunk %v from %v to %v", p.handle, p.from, p.to)

		var reply gfs.TransferChunkReply
		err := util.Call(p.from, "ChunkServer.RPCTransferChunk", gfs.TransferChunkArg{
			FileName:      fileName,
			ChunkIndex:    index,
			TargetAddress: p.to,
		}, &reply)
		if err != nil {
			log.Warningf("transfer of %v from %v to %v failed: %v", p.handle, p.from, p.to, err)
			continue
		}

		m.meta.mu.Lock()
		if d, ok := m.meta.chunkMap[p.handle]; ok && !d.hasServer(p.to) {
			d.servers = append(d.servers, p.to)
			d.version++
			if info, ok := m.meta.chunkServers[p.to]; ok {
				info.chunks[p.handle] = true
			}
		}
		m.meta.seq++
		snap := m.meta.snapshotLocked()
		m.meta.mu.Unlock()

		m.propagate(snap)
	}
}

// fileAndIndex recovers (file_name, index) from a chunk handle of the
// canonical form "<file_name>_chunk_<index>".
func fileAndIndex(handle gfs.ChunkHandle) (string, gfs.ChunkIndex) {
	s := string(handle)
	marker := "_chunk_"
	pos := lastIndexOf(s, marker)
	fileName := s[:pos]
	suffix := s[pos+len(marker):]
	var idx int64
	for _, r := range suffix {
		idx = idx*10 + int64(r-'0')
	}
	return fileName, gfs.ChunkIndex(idx)
}

func lastIndexOf(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
