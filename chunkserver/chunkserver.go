// Package chunkserver implements the chunk node role: it stores chunk
// bytes on local disk, serves read/append/upload/delete RPCs, heartbeats
// to the active master, accepts chunk transfers from peers, and caches
// the current OTP per user.
package chunkserver

import (
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// ChunkServer is a single chunk node.
type ChunkServer struct {
	address     gfs.ServerAddress
	masterAddrs []gfs.ServerAddress
	cfg         *gfs.Config
	dataPath    string

	l        net.Listener
	shutdown chan struct{}

	activeMu     sync.RWMutex
	activeMaster gfs.ServerAddress

	pendingChunks *util.ArraySet // chunks created/changed since the last heartbeat

	locksMu sync.Mutex
	locks   map[gfs.ChunkHandle]*sync.Mutex

	otps *util.ExpiringMap[string, gfs.OTPEntry]
}

// NewAndServe starts a chunk node listening on address and returns it.
func NewAndServe(address gfs.ServerAddress, cfg *gfs.Config) *ChunkServer {
	cs := &ChunkServer{
		address:       address,
		masterAddrs:   cfg.MasterAddrs,
		cfg:           cfg,
		dataPath:      cfg.DataPath,
		shutdown:      make(chan struct{}),
		pendingChunks: &util.ArraySet{},
		locks:         make(map[gfs.ChunkHandle]*sync.Mutex),
		otps:          util.NewExpiringMap[string, gfs.OTPEntry](cfg.OTPValidDuration(), time.Minute),
	}

	if err := os.MkdirAll(cs.dataPath, 0755); err != nil {
		log.Fatalf("could not create data path %v: %v", cs.dataPath, err)
	}

	rpcs := rpc.NewServer()
	rpcs.Register(cs)
	l, err := net.Listen("tcp", string(address))
	if err != nil {
		log.Fatalf("listen error: %v", err)
	}
	cs.l = l

	go cs.acceptLoop(rpcs)
	go cs.registerAndHeartbeatLoop()

	log.Infof("chunkserver %v is running, root=%v", address, cs.dataPath)
	return cs
}

func (cs *ChunkServer) acceptLoop(rpcs *rpc.Server) {
	for {
		select {
		case <-cs.shutdown:
			return
		default:
		}
		conn, err := cs.l.Accept()
		if err != nil {
			select {
			case <-cs.shutdown:
				return
			default:
				log.Warningf("accept error: %v", err)
				continue
			}
		}
		go func() {
			rpcs.ServeConn(conn)
			conn.Close()
		}()
	}
}

// registerAndHeartbeatLoop discovers the active master, registers with
// it, and then heartbeats every heartbeat_interval, reporting the chunks
// created/changed since the prior tick and rediscovering the master if
// an RPC fails.
func (cs *ChunkServer) registerAndHeartbeatLoop() {
	ticker := time.NewTicker(cs.cfg.HeartbeatInterval())
	defer ticker.Stop()

	cs.registerWithMaster()
	for {
		select {
		case <-cs.shutdown:
			return
		case <-ticker.C:
			cs.heartbeatOnce()
		}
	}
}

func (cs *ChunkServer) registerWithMaster() {
	addr, err := util.DiscoverMaster(cs.masterAddrs, gfs.DefaultRPCTimeout)
	if err != nil {
		log.Warningf("chunkserver %v: could not discover master: %v", cs.address, err)
		return
	}
	cs.activeMu.Lock()
	cs.activeMaster = addr
	cs.activeMu.Unlock()

	var reply gfs.RegisterChunkServerReply
	if err := util.Call(addr, "Master.RPCRegisterChunkServer", gfs.RegisterChunkServerArg{Address: cs.address}, &reply); err != nil {
		log.Warningf("chunkserver %v: register with %v failed: %v", cs.address, addr, err)
	}
}

func (cs *ChunkServer) heartbeatOnce() {
	cs.activeMu.RLock()
	addr := cs.activeMaster
	cs.activeMu.RUnlock()
	if addr == "" {
		cs.registerWithMaster()
		return
	}

	pending := cs.pendingChunks.GetAllAndClear()
	handles := make([]gfs.ChunkHandle, 0, len(pending))
	for _, v := range pending {
		handles = append(handles, v.(gfs.ChunkHandle))
	}

	var reply gfs.HeartbeatReply
	err := util.Call(addr, "Master.RPCHeartbeat", gfs.HeartbeatArg{Address: cs.address, ChunkIDs: handles}, &reply)
	if err != nil {
		log.Warningf("chunkserver %v: heartbeat to %v failed: %v, rediscovering", cs.address, addr, err)
		// don't lose this tick's report
		for _, h := range handles {
			cs.pendingChunks.Add(h)
		}
		cs.registerWithMaster()
	}
}

// chunkLock returns the per-chunk mutex for handle, creating it on first
// use. Serializing writes per chunk keeps append ordering well-defined on
// this replica, per spec §5; reads of distinct chunks still proceed in
// parallel since each chunk has its own lock.
func (cs *ChunkServer) chunkLock(handle gfs.ChunkHandle) *sync.Mutex {
	cs.locksMu.Lock()
	defer cs.locksMu.Unlock()
	l, ok := cs.locks[handle]
	if !ok {
		l = &sync.Mutex{}
		cs.locks[handle] = l
	}
	return l
}

// Shutdown stops the chunk node's listener and background loops.
func (cs *ChunkServer) Shutdown() {
	close(cs.shutdown)
	cs.l.Close()
}
