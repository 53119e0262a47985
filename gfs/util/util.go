// Package util holds small RPC and concurrency helpers shared by the
// master, chunkserver, and client packages.
package util

import (
	"net"
	"net/rpc"
	"time"

	"gfs"
)

// Call dials addr, invokes the named RPC method, and closes the
// connection. A zero-value reply pointer is fine if the callee doesn't
// return anything interesting.
//
// net/rpc reduces any error a handler returns to an opaque string and
// hands the caller back an rpc.ServerError, discarding the original
// gfs.Error's code. A handler that wants a caller to see its actual
// ErrorCode instead reports it in-band via a reply embedding
// gfs.RPCStatus and returns nil; statusErr below recovers that after a
// transport-level success.
func Call(addr gfs.ServerAddress, rpcname string, args interface{}, reply interface{}) error {
	conn, err := rpc.Dial("tcp", string(addr))
	if err != nil {
		return gfs.NewError(gfs.Transient, err)
	}
	defer conn.Close()

	if err := conn.Call(rpcname, args, reply); err != nil {
		return gfs.NewError(gfs.Transient, err)
	}
	return statusErr(reply)
}

// CallWithTimeout is Call with a deadline on the dial step, used for the
// PingMaster probes (master discovery, the startup handshake, and the
// shadow ping) where a hung connection must not block a tick indefinitely.
func CallWithTimeout(addr gfs.ServerAddress, rpcname string, args interface{}, reply interface{}, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", string(addr), timeout)
	if err != nil {
		return gfs.NewError(gfs.Transient, err)
	}
	client := rpc.NewClient(conn)
	defer client.Close()

	if err := client.Call(rpcname, args, reply); err != nil {
		return gfs.NewError(gfs.Transient, err)
	}
	return statusErr(reply)
}

// statusErr recovers a handler-reported RPCStatus from reply, if the
// reply type embeds one.
func statusErr(reply interface{}) error {
	if sr, ok := reply.(gfs.Statused); ok {
		return sr.AsError()
	}
	return nil
}

// CallAll applies the RPC call to every destination concurrently and
// returns the first error encountered, if any. Every destination is
// still attempted even after one fails.
func CallAll(dsts []gfs.ServerAddress, rpcname string, args interface{}) error {
	ch := make(chan error, len(dsts))
	for _, d := range dsts {
		go func(addr gfs.ServerAddress) {
			ch <- Call(addr, rpcname, args, nil)
		}(d)
	}
	var first error
	for range dsts {
		if e := <-ch; e != nil && first == nil {
			first = e
		}
	}
	return first
}
