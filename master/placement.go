package master

import (
	"sort"

	"gfs"
)

// leastLoadedCandidates returns every live chunk server address with
// load strictly below maxAllowed, sorted by ascending load (ties broken
// by address, which is deterministic w.r.t. the map iteration it derives
// from but not meaningfully arbitrary to a reader). exclude is skipped
// entirely (already holds the chunk in question).
func leastLoadedCandidates(m *metadata, load map[gfs.ServerAddress]int, maxAllowed int, exclude map[gfs.ServerAddress]bool) []gfs.ServerAddress {
	type candidate struct {
		addr gfs.ServerAddress
		load int
	}
	var cands []candidate
	for addr := range m.chunkServers {
		if exclude[addr] {
			continue
		}
		l := load[addr]
		if l < maxAllowed {
			cands = append(cands, candidate{addr, l})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].load != cands[j].load {
			return cands[i].load < cands[j].load
		}
		return cands[i].addr < cands[j].addr
	})
	out := make([]gfs.ServerAddress, len(cands))
	for i, c := range cands {
		out[i] = c.addr
	}
	return out
}

// planAssignment computes, without mutating metadata, the replica set
// for each of n new chunk indices. It tracks a local copy of per-server
// load so that later chunks in the same call see the load contributed by
// earlier chunks. It returns CapacityExhausted if any chunk would get
// zero eligible replicas.
func (m *metadata) planAssignment(n int, replicationFactor, maxAllowedChunks int) ([][]gfs.ServerAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	load := make(map[gfs.ServerAddress]int, len(m.chunkServers))
	for addr, info := range m.chunkServers {
		load[addr] = len(info.chunks)
	}

	plan := make([][]gfs.ServerAddress, n)
	for i := 0; i < n; i++ {
		chosen := map[gfs.ServerAddress]bool{}
		var servers []gfs.ServerAddress
		for len(servers) < replicationFactor {
			cands := leastLoadedCandidates(m, load, maxAllowedChunks, chosen)
			if len(cands) == 0 {
				break
			}
			pick := cands[0]
			chosen[pick] = true
			servers = append(servers, pick)
			load[pick]++
		}
		if len(servers) == 0 {
			return nil, gfs.Errorf(gfs.CapacityExhausted, "no chunk server has capacity for chunk index %d", i)
		}
		plan[i] = servers
	}
	return plan, nil
}

// commitAssignmentLocked allocates chunk descriptors for fileName starting at
// the file's current chunk count and appends them, using a precomputed
// placement plan. Must be called with mu held for writing.
//
// fileChunks[fileName] is set even when plan is empty (a zero-byte
// upload): the key's presence, not its length, is what RPCGetFileChunks
// uses to decide a file exists, per spec §8's boundary property that an
// empty file still reads back successfully with zero chunks.
func (m *metadata) commitAssignmentLocked(fileName string, plan [][]gfs.ServerAddress) []gfs.ChunkInfo {
	list := m.fileChunks[fileName]
	start := gfs.ChunkIndex(len(list))
	infos := make([]gfs.ChunkInfo, len(plan))
	for i, servers := range plan {
		index := start + gfs.ChunkIndex(i)
		handle := gfs.NewChunkHandle(fileName, index)
		d := &chunkDescriptor{handle: handle, servers: servers, version: 1}
		m.chunkMap[handle] = d
		list = append(list, d)
		for _, addr := range servers {
			if info, ok := m.chunkServers[addr]; ok {
				info.chunks[handle] = true
			}
		}
		infos[i] = d.info()
	}
	m.fileChunks[fileName] = list
	m.seq++
	return infos
}

// reReplicationTargetsLocked returns, for every under-replicated chunk
// currently in metadata, the (from, to) pair the caller should use to
// issue a TransferChunk: from is a surviving holder, to is the
// least-loaded eligible node not already holding the chunk. Chunks with
// no eligible candidate are skipped (they remain under-replicated until
// the next tick).
type reReplicationPlan struct {
	handle gfs.ChunkHandle
	from   gfs.ServerAddress
	to     gfs.ServerAddress
}

func (m *metadata) reReplicationTargetsLocked(replicationFactor, maxAllowedChunks int) []reReplicationPlan {
	load := make(map[gfs.ServerAddress]int, len(m.chunkServers))
	for addr, info := range m.chunkServers {
		load[addr] = len(info.chunks)
	}

	var plans []reReplicationPlan
	for _, d := range m.chunkMap {
		if len(d.servers) >= replicationFactor {
			continue
		}
		if len(d.servers) == 0 {
			continue // no surviving holder to copy from
		}
		exclude := map[gfs.ServerAddress]bool{}
		for _, s := range d.servers {
			exclude[s] = true
		}
		cands := leastLoadedCandidates(m, load, maxAllowedChunks, exclude)
		if len(cands) == 0 {
			continue
		}
		to := cands[0]
		load[to]++
		plans = append(plans, reReplicationPlan{handle: d.handle, from: d.servers[0], to: to})
	}
	return plans
}
