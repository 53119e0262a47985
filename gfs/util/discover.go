package util

import (
	"time"

	"gfs"
)

// DiscoverMaster iterates addrs and returns the first one that answers
// PingMaster affirmatively. Both the client and the chunk node use this
// to resolve "the active master" before issuing a mutating RPC, per
// spec §4.5 ("client resolves the active master by attempting each
// configured master address until one responds 'I am leader'").
func DiscoverMaster(addrs []gfs.ServerAddress, timeout time.Duration) (gfs.ServerAddress, error) {
	for _, addr := range addrs {
		var reply gfs.PingMasterReply
		err := CallWithTimeout(addr, "Master.RPCPingMaster", gfs.PingMasterArg{}, &reply, timeout)
		if err == nil && reply.IsLeader {
			return addr, nil
		}
	}
	return "", gfs.Errorf(gfs.Transient, "no master in %v answered as leader", addrs)
}
