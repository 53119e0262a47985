// Package master implements the coordinator role of the cluster: the
// active master owns filesystem metadata and drives placement, failure
// detection, rebalancing, and authentication; shadow masters keep a
// passive replica of that metadata and race to take over on failure.
package master

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// Master is a single node of the master set: it is either Active or
// Shadow at any moment, and transitions between the two as described in
// the package doc.
type Master struct {
	address     gfs.ServerAddress
	masterAddrs []gfs.ServerAddress // the full configured master set, self included
	priority    int                 // this master's index in masterAddrs; lower = higher priority
	cfg         *gfs.Config

	meta *metadata

	stateMu    sync.RWMutex
	state      State
	activeAddr gfs.ServerAddress // which address this shadow currently believes is active

	l        net.Listener
	shutdown chan struct{}
}

// NewAndServe starts a master listening on address and returns it. It
// performs the startup handshake (spec §4.1) before returning: it pings
// every peer in cfg.MasterAddrs and becomes Shadow if any affirms
// leadership, Active otherwise.
func NewAndServe(address gfs.ServerAddress, cfg *gfs.Config) *Master {
	m := &Master{
		address:     address,
		masterAddrs: cfg.MasterAddrs,
		cfg:         cfg,
		meta:        newMetadata(),
		shutdown:    make(chan struct{}),
	}
	for i, a := range m.masterAddrs {
		if a == address {
			m.priority = i
		}
	}

	if err := m.loadAuthTable(); err != nil {
		log.Warningf("could not load auth table: %v", err)
	}

	rpcs := rpc.NewServer()
	rpcs.Register(m)
	l, err := net.Listen("tcp", string(address))
	if err != nil {
		log.Fatalf("listen error: %v", err)
	}
	m.l = l

	m.performStartupHandshake()

	go m.acceptLoop(rpcs)
	go m.backgroundLoop()

	log.Infof("master %v is running as %v", address, m.State())
	return m
}

// State returns the master's current leadership role.
func (m *Master) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Master) setState(s State, activeAddr gfs.ServerAddress) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.state != s {
		log.Infof("master %v transitions %v -> %v", m.address, m.state, s)
	}
	m.state = s
	m.activeAddr = activeAddr
}

// performStartupHandshake asks every other configured master "are you
// the leader?" and becomes Shadow of the first affirmative responder, or
// Active if nobody answers.
func (m *Master) performStartupHandshake() {
	for _, addr := range m.masterAddrs {
		if addr == m.address {
			continue
		}
		var reply gfs.PingMasterReply
		err := util.CallWithTimeout(addr, "Master.RPCPingMaster", gfs.PingMasterArg{Sender: m.address}, &reply, gfs.DefaultRPCTimeout)
		if err == nil && reply.IsLeader {
			m.setState(Shadow, addr)
			return
		}
	}
	m.setState(Active, m.address)
}

func (m *Master) acceptLoop(rpcs *rpc.Server) {
	for {
		select {
		case <-m.shutdown:
			return
		default:
		}
		conn, err := m.l.Accept()
		if err != nil {
			select {
			case <-m.shutdown:
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

// backgroundLoop runs the cron task (Active) or the shadow ping loop
// (Shadow), re-evaluating its role every tick so a Shadow that is
// promoted mid-run switches over without a restart.
func (m *Master) backgroundLoop() {
	cronTicker := time.NewTicker(m.cfg.CronInterval())
	defer cronTicker.Stop()
	shadowTicker := time.NewTicker(m.cfg.ShadowMasterPingInterval())
	defer shadowTicker.Stop()

	for {
		select {
		case <-m.shutdown:
			return
		case <-cronTicker.C:
			if m.State() == Active {
				m.cronTick()
			}
		case <-shadowTicker.C:
			if m.State() == Shadow {
				m.shadowTick()
			}
		}
	}
}

// shadowTick pings the currently-known active master. On failure, it
// does not promote unconditionally: it first pings every higher-priority
// master (lower index in masterAddrs), per the split-brain mitigation in
// SPEC_FULL.md §4.1. One that claims leadership becomes the tracked
// active; one that is reachable but not leader makes this shadow wait
// for a later tick. Only if none is reachable does it promote itself.
func (m *Master) shadowTick() {
	m.stateMu.RLock()
	target := m.activeAddr
	m.stateMu.RUnlock()

	var reply gfs.PingMasterReply
	err := util.CallWithTimeout(target, "Master.RPCPingMaster", gfs.PingMasterArg{Sender: m.address}, &reply, gfs.DefaultRPCTimeout)
	if err == nil && reply.IsLeader {
		return // still healthy
	}

	log.Warningf("shadow %v: active master %v unreachable, checking higher-priority peers", m.address, target)
	for i := 0; i < m.priority; i++ {
		addr := m.masterAddrs[i]
		var r gfs.PingMasterReply
		if err := util.CallWithTimeout(addr, "Master.RPCPingMaster", gfs.PingMasterArg{Sender: m.address}, &r, gfs.DefaultRPCTimeout); err == nil {
			if r.IsLeader {
				m.setState(Shadow, addr)
			}
			return
		}
	}

	log.Warningf("shadow %v: no higher-priority master reachable, promoting to active", m.address)
	m.setState(Active, m.address)
}

// propagate sends the metadata snapshot to every other configured
// master, best-effort: failures are logged, not retried, per spec §4.1.
func (m *Master) propagate(snap gfs.MetadataSnapshot) {
	for _, addr := range m.masterAddrs {
		if addr == m.address {
			continue
		}
		go func(a gfs.ServerAddress) {
			var reply gfs.UpdateMetadataReply
			if err := util.Call(a, "Master.RPCUpdateMetadata", gfs.UpdateMetadataArg{Snapshot: snap}, &reply); err != nil {
				log.Warningf("propagate metadata to %v failed: %v", a, err)
			}
		}(addr)
	}
}

// Shutdown stops the master's listener and background loops.
func (m *Master) Shutdown() {
	close(m.shutdown)
	m.l.Close()
}
