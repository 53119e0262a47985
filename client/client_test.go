package client_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gfs"
	"gfs/chunkserver"
	"gfs/client"
	"gfs/master"
)

// fastCfg returns a config tuned for quick background-loop ticks so
// integration tests don't need to sleep long for registration/heartbeats.
func fastCfg(masterAddrs []gfs.ServerAddress, dataPath string) *gfs.Config {
	return &gfs.Config{
		MasterAddrs:                     masterAddrs,
		ChunkSize:                       16,
		ReplicationFactor:               2,
		MaxAllowedChunks:                100,
		HeartbeatIntervalSeconds:        0.02,
		CronIntervalSeconds:             0.02,
		ShadowMasterPingIntervalSeconds: 0.02,
		HeartbeatFailureThreshold:       3,
		DataPath:                        dataPath,
	}
}

// cluster spins up one master and two chunk servers on loopback for the
// duration of a test.
type cluster struct {
	masterAddr gfs.ServerAddress
	m          *master.Master
	cs1, cs2   *chunkserver.ChunkServer
}

func newCluster(t *testing.T, masterAddr, cs1Addr, cs2Addr gfs.ServerAddress) *cluster {
	t.Helper()
	masterAddrs := []gfs.ServerAddress{masterAddr}

	mCfg := fastCfg(masterAddrs, t.TempDir())
	m := master.NewAndServe(masterAddr, mCfg)

	cs1 := chunkserver.NewAndServe(cs1Addr, fastCfg(masterAddrs, t.TempDir()))
	cs2 := chunkserver.NewAndServe(cs2Addr, fastCfg(masterAddrs, t.TempDir()))

	c := &cluster{masterAddr: masterAddr, m: m, cs1: cs1, cs2: cs2}
	t.Cleanup(func() {
		cs1.Shutdown()
		cs2.Shutdown()
		m.Shutdown()
	})
	return c
}

func newClient(masterAddr gfs.ServerAddress) *client.Client {
	cfg := fastCfg([]gfs.ServerAddress{masterAddr}, "")
	return client.NewClient([]gfs.ServerAddress{masterAddr}, cfg)
}

func TestUploadReadRoundTrip(t *testing.T) {
	newCluster(t, "127.0.0.1:23801", "127.0.0.1:23802", "127.0.0.1:23803")
	c := newClient("127.0.0.1:23801")

	payload := []byte("hello, distributed world!") // 25 bytes, 2 chunks at chunk_size=16
	require.Eventually(t, func() bool {
		return c.Upload("greeting.txt", payload) == nil
	}, 2*time.Second, 20*time.Millisecond, "chunk servers must finish registering before placement succeeds")

	data, err := c.Read("greeting.txt")
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestAppendAcrossChunkBoundary(t *testing.T) {
	newCluster(t, "127.0.0.1:23811", "127.0.0.1:23812", "127.0.0.1:23813")
	c := newClient("127.0.0.1:23811")

	require.Eventually(t, func() bool {
		return c.Upload("log.txt", []byte("0123456789")) == nil // 10 bytes, under chunk_size
	}, 2*time.Second, 20*time.Millisecond)

	// Appending 10 more bytes overflows the 16-byte first chunk and must
	// spill the remainder into a freshly uploaded second chunk.
	require.NoError(t, c.Append("log.txt", []byte("abcdefghij")))

	data, err := c.Read("log.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789abcdefghij"), data)
}

func TestDeleteIsIdempotent(t *testing.T) {
	newCluster(t, "127.0.0.1:23821", "127.0.0.1:23822", "127.0.0.1:23823")
	c := newClient("127.0.0.1:23821")

	require.Eventually(t, func() bool {
		return c.Upload("doomed.txt", []byte("bye")) == nil
	}, 2*time.Second, 20*time.Millisecond)

	ok, err := c.Delete("doomed.txt")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Delete("doomed.txt")
	require.NoError(t, err)
	require.True(t, ok, "deleting an already-deleted file must still report success")

	_, err = c.Read("doomed.txt")
	require.Error(t, err)
	require.Equal(t, gfs.NotFound, gfs.CodeOf(err))
}

func TestAuthenticateChecksCredentialsWhenEnabled(t *testing.T) {
	masterAddr := gfs.ServerAddress("127.0.0.1:23831")
	authPath := writeAuthFile(t, "carol:letmein")

	mCfg := fastCfg([]gfs.ServerAddress{masterAddr}, t.TempDir())
	mCfg.UseAuthentication = true
	mCfg.AuthenticationFilePath = authPath
	m := master.NewAndServe(masterAddr, mCfg)

	csCfg := fastCfg([]gfs.ServerAddress{masterAddr}, t.TempDir())
	csCfg.UseAuthentication = true
	cs := chunkserver.NewAndServe(gfs.ServerAddress("127.0.0.1:23832"), csCfg)
	t.Cleanup(func() {
		cs.Shutdown()
		m.Shutdown()
	})

	c := newClient(masterAddr)

	require.Error(t, c.Authenticate("carol", "wrong-password"))
	require.NoError(t, c.Authenticate("carol", "letmein"))
}

func writeAuthFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.txt")
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
