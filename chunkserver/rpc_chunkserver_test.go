package chunkserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gfs"
	"gfs/util"
)

func newAuthedTestChunkServer(t *testing.T) *ChunkServer {
	t.Helper()
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{UseAuthentication: true}
	cs.otps = util.NewExpiringMap[string, gfs.OTPEntry](time.Minute, time.Minute)
	t.Cleanup(cs.otps.Close)
	return cs
}

func TestCheckOTPDisabledAlwaysPasses(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{UseAuthentication: false}
	require.NoError(t, cs.checkOTP("anything"))
	require.NoError(t, cs.checkOTP(""))
}

func TestCheckOTPRejectsUnknown(t *testing.T) {
	cs := newAuthedTestChunkServer(t)
	err := cs.checkOTP("never-issued")
	require.Error(t, err)
	require.Equal(t, gfs.OtpInvalid, gfs.CodeOf(err))
}

func TestSendOtpThenCheckOTPSucceeds(t *testing.T) {
	cs := newAuthedTestChunkServer(t)
	var reply gfs.SendOtpReply
	err := cs.RPCSendOtp(gfs.SendOtpArg{OTP: "otp-123", Expiration: time.Now().Add(time.Minute)}, &reply)
	require.NoError(t, err)

	require.NoError(t, cs.checkOTP("otp-123"))
}

func TestIsFirstReplica(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.address = "b:1"
	require.False(t, cs.isFirstReplica([]gfs.ServerAddress{"a:1", "b:1"}))
	require.True(t, cs.isFirstReplica([]gfs.ServerAddress{"b:1", "a:1"}))
	require.False(t, cs.isFirstReplica(nil))
}

func TestRPCUploadInternalDoesNotRelay(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{}
	args := gfs.UploadArg{
		Info:       gfs.FileInfo{FileName: "f.txt", ChunkIndex: 0},
		Data:       []byte("payload"),
		IsInternal: true,
		Replicas:   []gfs.ServerAddress{cs.address, "unreachable:1"},
	}
	var reply gfs.UploadReply
	require.NoError(t, cs.RPCUpload(args, &reply))
	require.NoError(t, reply.AsError(), "a relay to the unreachable peer would have failed the call")

	data, err := cs.readChunk("f.txt", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestRPCUploadRejectsBadOTP(t *testing.T) {
	cs := newAuthedTestChunkServer(t)
	args := gfs.UploadArg{Info: gfs.FileInfo{FileName: "f.txt", ChunkIndex: 0}, Data: []byte("x"), OTP: "bad"}
	var reply gfs.UploadReply
	// The handler reports a failed OTP check in-band via reply.RPCStatus,
	// not as the Go error return: net/rpc would otherwise reduce a
	// returned gfs.Error to an opaque string and lose its code.
	require.NoError(t, cs.RPCUpload(args, &reply))
	err := reply.AsError()
	require.Error(t, err)
	require.Equal(t, gfs.OtpInvalid, gfs.CodeOf(err))
}

func TestRPCReadAndDeleteRoundTrip(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{}
	require.NoError(t, cs.writeChunk("f.txt", 0, []byte("abc")))

	var readReply gfs.ReadReply
	require.NoError(t, cs.RPCRead(gfs.ReadArg{FileName: "f.txt", ChunkIndex: 0}, &readReply))
	require.Equal(t, []byte("abc"), readReply.Data)

	var delReply gfs.DeleteReply
	require.NoError(t, cs.RPCDelete(gfs.DeleteArg{FileName: "f.txt", ChunkIndex: 0}, &delReply))

	_, err := cs.readChunk("f.txt", 0)
	require.Error(t, err)
}

func TestRPCAppendInternalDoesNotRelay(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{}
	args := gfs.AppendArg{FileName: "f.txt", ChunkIndex: 0, Data: []byte("abc"), IsInternal: true, Replicas: []gfs.ServerAddress{"unreachable:1"}}
	var reply gfs.AppendReply
	require.NoError(t, cs.RPCAppend(args, &reply))

	data, err := cs.readChunk("f.txt", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)
}

func TestRelayUploadFailsOnlyWhenAllPeersFail(t *testing.T) {
	cs := newTestChunkServer(t)
	cs.cfg = &gfs.Config{}
	args := gfs.UploadArg{
		Info:     gfs.FileInfo{FileName: "f.txt", ChunkIndex: 0},
		Data:     []byte("x"),
		Replicas: []gfs.ServerAddress{cs.address, "unreachable-1:1", "unreachable-2:1"},
	}
	err := cs.relayUpload(args)
	require.Error(t, err)
	require.Equal(t, gfs.ReplicaUnavailable, gfs.CodeOf(err))
}
