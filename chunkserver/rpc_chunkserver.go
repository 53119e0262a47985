package chunkserver

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// checkOTP enforces spec §4.6: when authentication is enabled, every
// data RPC must carry an OTP this node has cached and that has not
// expired.
func (cs *ChunkServer) checkOTP(otp string) error {
	if !cs.cfg.UseAuthentication {
		return nil
	}
	if _, ok := cs.otps.Get(otp); !ok {
		return gfs.Errorf(gfs.OtpInvalid, "otp missing or expired")
	}
	return nil
}

// RPCSendOtp stores/updates an OTP entry fanned out by the master on a
// successful Authenticate call. Keyed by the OTP string itself so
// checkOTP is a direct presence-and-expiry lookup.
func (cs *ChunkServer) RPCSendOtp(args gfs.SendOtpArg, reply *gfs.SendOtpReply) error {
	cs.otps.SetWithExpiration(args.OTP, gfs.OTPEntry{OTP: args.OTP, Expiration: args.Expiration}, args.Expiration)
	reply.Message = "ok"
	return nil
}

// RPCUpload writes the chunk bytes locally and, if this node is the
// first replica of a client-initiated (non-internal) upload, relays the
// same bytes to every other replica concurrently. A relay failure is
// logged but does not fail the client-facing call unless every replica
// fails, per spec §4.4.
func (cs *ChunkServer) RPCUpload(args gfs.UploadArg, reply *gfs.UploadReply) error {
	if err := cs.checkOTP(args.OTP); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	handle := gfs.NewChunkHandle(args.Info.FileName, args.Info.ChunkIndex)
	lock := cs.chunkLock(handle)
	lock.Lock()
	err := cs.writeChunk(args.Info.FileName, args.Info.ChunkIndex, args.Data)
	lock.Unlock()
	if err != nil {
		reply.RPCStatus = gfs.StatusFromError(gfs.NewError(gfs.UnknownError, err))
		return nil
	}
	cs.pendingChunks.Add(handle)

	if !args.IsInternal && cs.isFirstReplica(args.Replicas) {
		if err := cs.relayUpload(args); err != nil {
			reply.RPCStatus = gfs.StatusFromError(err)
			return nil
		}
	}

	reply.Message = "ok"
	return nil
}

func (cs *ChunkServer) isFirstReplica(replicas []gfs.ServerAddress) bool {
	return len(replicas) > 0 && replicas[0] == cs.address
}

// relayUpload fans the upload out to every replica after the first
// (itself). It fails only if every relay fails.
func (cs *ChunkServer) relayUpload(args gfs.UploadArg) error {
	peers := args.Replicas[1:]
	if len(peers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(peers))
	for i, peer := range peers {
		wg.Add(1)
		go func(i int, peer gfs.ServerAddress) {
			defer wg.Done()
			relayArgs := gfs.UploadArg{Info: args.Info, Data: args.Data, OTP: args.OTP, IsInternal: true}
			var r gfs.UploadReply
			if err := util.Call(peer, "ChunkServer.RPCUpload", relayArgs, &r); err != nil {
				log.Warningf("relay upload of %v to %v failed: %v", args.Info, peer, err)
				errs[i] = err
			}
		}(i, peer)
	}
	wg.Wait()

	for _, e := range errs {
		if e == nil {
			return nil // at least one relay succeeded
		}
	}
	return gfs.Errorf(gfs.ReplicaUnavailable, "all %d relay targets failed", len(peers))
}

// RPCRead returns the full bytes of a chunk.
func (cs *ChunkServer) RPCRead(args gfs.ReadArg, reply *gfs.ReadReply) error {
	if err := cs.checkOTP(args.OTP); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}
	data, err := cs.readChunk(args.FileName, args.ChunkIndex)
	if err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}
	reply.Data = data
	return nil
}

// RPCAppend appends data to the local chunk file and, for a
// client-initiated call, relays the identical append to every peer
// replica so every live replica observes the same bytes in the same
// textual form (spec §4.4's contract; cross-replica ordering of
// concurrent appends from different clients is not guaranteed, per §9).
func (cs *ChunkServer) RPCAppend(args gfs.AppendArg, reply *gfs.AppendReply) error {
	if err := cs.checkOTP(args.OTP); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	handle := gfs.NewChunkHandle(args.FileName, args.ChunkIndex)
	lock := cs.chunkLock(handle)
	lock.Lock()
	err := cs.appendChunk(args.FileName, args.ChunkIndex, args.Data)
	lock.Unlock()
	if err != nil {
		reply.RPCStatus = gfs.StatusFromError(gfs.NewError(gfs.UnknownError, err))
		return nil
	}
	cs.pendingChunks.Add(handle)

	if !args.IsInternal {
		var wg sync.WaitGroup
		for _, peer := range args.Replicas {
			if peer == cs.address {
				continue
			}
			wg.Add(1)
			go func(peer gfs.ServerAddress) {
				defer wg.Done()
				relayArgs := gfs.AppendArg{FileName: args.FileName, ChunkIndex: args.ChunkIndex, Data: args.Data, OTP: args.OTP, IsInternal: true}
				var r gfs.AppendReply
				if err := util.Call(peer, "ChunkServer.RPCAppend", relayArgs, &r); err != nil {
					log.Warningf("relay append of %v to %v failed: %v", handle, peer, err)
				}
			}(peer)
		}
		wg.Wait()
	}

	reply.Message = "ok"
	return nil
}

// RPCDelete removes the local chunk file. Idempotent.
func (cs *ChunkServer) RPCDelete(args gfs.DeleteArg, reply *gfs.DeleteReply) error {
	if err := cs.checkOTP(args.OTP); err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}
	if err := cs.deleteChunkFile(args.FileName, args.ChunkIndex); err != nil {
		reply.RPCStatus = gfs.StatusFromError(gfs.NewError(gfs.UnknownError, err))
		return nil
	}
	reply.Message = "ok"
	return nil
}

// RPCTransferChunk reads the local chunk and streams it to target via
// that peer's Upload RPC with is_internal=true, used by the master to
// drive re-replication (spec §4.2).
func (cs *ChunkServer) RPCTransferChunk(args gfs.TransferChunkArg, reply *gfs.TransferChunkReply) error {
	data, err := cs.readChunk(args.FileName, args.ChunkIndex)
	if err != nil {
		reply.RPCStatus = gfs.StatusFromError(err)
		return nil
	}

	uploadArgs := gfs.UploadArg{
		Info:       gfs.FileInfo{FileName: args.FileName, ChunkIndex: args.ChunkIndex},
		Data:       data,
		IsInternal: true,
	}
	var uploadReply gfs.UploadReply
	if err := util.Call(args.TargetAddress, "ChunkServer.RPCUpload", uploadArgs, &uploadReply); err != nil {
		reply.RPCStatus = gfs.StatusFromError(gfs.NewError(gfs.ReplicaUnavailable, err))
		return nil
	}

	reply.Message = "ok"
	return nil
}
