package master

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// requireActive returns NotLeader if this master is currently Shadow;
// mutation RPCs must reject while Shadow so clients retry elsewhere.
func (m *Master) requireActive() error {
	if m.State() != Active {
		return gfs.Errorf(gfs.NotLeader, "master %v is not the leader", m.address)
	}
	return nil
}

// RPCPingMaster answers "are you the leader?" — used both by the
// startup handshake and by shadow liveness pings.
func (m *Master) RPCPingMaster(args gfs.PingMasterArg, reply *gfs.PingMasterReply) error {
	reply.IsLeader = m.State() == Active
	return nil
}

// RPCUpdateMetadata is master-to-master only: the active master pushes
// its full metadata snapshot to every shadow on every mutation.
func (m *Master) RPCUpdateMetadata(args gfs.UpdateMetadataArg, reply *gfs.UpdateMetadataReply) error {
	m.meta.applySnapshot(args.Snapshot)
	return nil
}

// RPCRegisterChunkServer is called by a chunk node on startup (and on
// restart, which discards its prior entry per spec §3 lifecycle rules).
func (m *Master) RPCRegisterChunkServer(args gfs.RegisterChunkServerArg, reply *gfs.RegisterChunkServerReply) error {
	m.meta.mu.Lock()
	m.meta.registerServerLocked(args.Address)
	m.meta.seq++
	snap := m.meta.snapshotLocked()
	m.meta.mu.Unlock()

	log.Infof("registered chunk server %v", args.Address)
	if m.State() == Active {
		m.propagate(snap)
	}
	return nil
}

// RPCHeartbeat records a chunk node's liveness and reconciles its
// reported chunk inventory with metadata (advisory only, per spec §4.3:
// chunks the node reports that aren't in metadata are ignored; chunks in
// metadata the node didn't report are left alone this tick).
func (m *Master) RPCHeartbeat(args gfs.HeartbeatArg, reply *gfs.HeartbeatReply) error {
	m.meta.mu.Lock()
	m.meta.heartbeats[args.Address] = time.Now()
	info, ok := m.meta.chunkServers[args.Address]
	if !ok {
		info = &chunkServerInfo{chunks: make(map[gfs.ChunkHandle]bool)}
		m.meta.chunkServers[args.Address] = info
	}
	for _, h := range args.ChunkIDs {
		if _, known := m.meta.chunkMap[h]; known {
			info.chunks[h] = true
		}
	}
	m.meta.mu.Unlock()

	reply.Message = "ok"
	return nil
}

// RPCAssignChunks is called by a client on upload: it computes how many
// chunks file_size needs and places each with replicas prioritizing the
// least-loaded eligible chunk servers (spec §4.2). The whole call fails
// with CapacityExhausted, leaving metadata untouched, if any chunk would
// get zero eligible replicas.
func (m *Master) RPCAssignChunks(args gfs.AssignChunksArg, reply *gfs.AssignChunksReply) error {
	if err := m.requireActive(); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	n := chunkCount(args.FileSize, m.cfg.ChunkSize)

	plan, err := m.meta.planAssignment(n, m.cfg.ReplicationFactor, m.cfg.MaxAllowedChunks)
	if err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	m.meta.mu.Lock()
	infos := m.meta.commitAssignmentLocked(args.FileName, plan)
	snap := m.meta.snapshotLocked()
	m.meta.mu.Unlock()

	for _, info := range infos {
		if len(info.ServerAddrs) < m.cfg.ReplicationFactor {
			log.Warningf("chunk %v placed with reduced replication: %d/%d", info.ChunkHandle, len(info.ServerAddrs), m.cfg.ReplicationFactor)
		}
	}

	m.propagate(snap)

	reply.FileName = args.FileName
	reply.Chunks = infos
	return nil
}

// chunkCount computes ceil(fileSize / chunkSize), special-cased to 0 for
// an empty file per spec §8's boundary property.
func chunkCount(fileSize, chunkSize int64) int {
	if fileSize <= 0 {
		return 0
	}
	n := fileSize / chunkSize
	if fileSize%chunkSize != 0 {
		n++
	}
	return int(n)
}

// RPCGetFileChunks returns the current chunk map for a file, used by the
// client for reads and appends.
func (m *Master) RPCGetFileChunks(args gfs.GetFileChunksArg, reply *gfs.GetFileChunksReply) error {
	m.meta.mu.RLock()
	defer m.meta.mu.RUnlock()

	chunks, ok := m.meta.fileChunks[args.FileName]
	if !ok {
		reply.RPCStatus = gfs.StatusFromError(gfs.Errorf(gfs.NotFound, "file %q not found", args.FileName))
		return nil
	}
	infos := make([]gfs.ChunkInfo, len(chunks))
	for i, c := range chunks {
		infos[i] = c.info()
	}
	reply.FileName = args.FileName
	reply.Chunks = infos
	return nil
}

// RPCDeleteFile orchestrates deletion: it removes the file from metadata,
// then sends a Delete RPC to every replica of every chunk in the
// background; it returns without waiting for those RPCs, and a failed
// one is only logged. Idempotent:
// deleting an already-deleted file returns success=true with a NotFound
// message rather than an error, matching the CLI-level contract in spec §8.
func (m *Master) RPCDeleteFile(args gfs.DeleteFileArg, reply *gfs.DeleteFileReply) error {
	if err := m.requireActive(); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	m.meta.mu.Lock()
	chunks, ok := m.meta.fileChunks[args.FileName]
	if !ok {
		m.meta.mu.Unlock()
		reply.Success = true
		reply.Message = gfs.NotFound.String()
		return nil
	}
	delete(m.meta.fileChunks, args.FileName)
	for _, c := range chunks {
		delete(m.meta.chunkMap, c.handle)
		for _, addr := range c.servers {
			if info, ok := m.meta.chunkServers[addr]; ok {
				delete(info.chunks, c.handle)
			}
		}
	}
	m.meta.seq++
	snap := m.meta.snapshotLocked()
	m.meta.mu.Unlock()

	for _, c := range chunks {
		fileName, index := fileAndIndex(c.handle)
		for _, addr := range c.servers {
			go func(a gfs.ServerAddress) {
				var dr gfs.DeleteReply
				if err := util.Call(a, "ChunkServer.RPCDelete", gfs.DeleteArg{FileName: fileName, ChunkIndex: index}, &dr); err != nil {
					log.Warningf("delete chunk %v on %v failed: %v", c.handle, a, err)
				}
			}(addr)
		}
	}

	m.propagate(snap)

	reply.Success = true
	reply.Message = "deleted"
	return nil
}

// RPCAuthenticate verifies credentials and, on success, issues a fresh
// OTP and fans it out to every registered chunk node before returning it
// to the client (spec §4.6).
func (m *Master) RPCAuthenticate(args gfs.AuthenticateArg, reply *gfs.AuthenticateReply) error {
	if err := m.requireActive(); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}
	ok, err := m.verifyCredentials(args.Username, args.Password)
	if err != nil || !ok {
		reply.RPCStatus = gfs.StatusFromError(gfs.Errorf(gfs.AuthFailed, "invalid credentials for %q", args.Username))
		return nil
	}

	otp, expiration := m.issueOTP(args.Username)

	m.meta.mu.RLock()
	addrs := make([]gfs.ServerAddress, 0, len(m.meta.chunkServers))
	for a := range m.meta.chunkServers {
		addrs = append(addrs, a)
	}
	m.meta.mu.RUnlock()

	var wg sync.WaitGroup
	for _, addr := range addrs {
		wg.Add(1)
		go func(a gfs.ServerAddress) {
			defer wg.Done()
			var r gfs.SendOtpReply
			if err := util.Call(a, "ChunkServer.RPCSendOtp", gfs.SendOtpArg{Username: args.Username, OTP: otp, Expiration: expiration}, &r); err != nil {
				log.Warningf("SendOtp to %v failed: %v", a, err)
			}
		}(addr)
	}
	wg.Wait()

	reply.OTP = otp
	reply.Expiration = expiration
	return nil
}
