// Package client implements the GFS client driver: upload, read, append,
// and delete, against the master/chunkserver RPC surface.
package client

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"gfs"
	"gfs/util"
)

// Client is the GFS client-side driver (spec §4.5).
type Client struct {
	masterAddrs []gfs.ServerAddress
	cfg         *gfs.Config

	mu           sync.Mutex
	cachedMaster gfs.ServerAddress

	username string
	otp      string
}

// NewClient returns a new GFS client for the given master set and config
// (chunk_size is read from cfg).
func NewClient(masterAddrs []gfs.ServerAddress, cfg *gfs.Config) *Client {
	return &Client{masterAddrs: masterAddrs, cfg: cfg}
}

// Authenticate calls the master's Authenticate RPC and caches the
// returned OTP for use on every subsequent data RPC.
func (c *Client) Authenticate(username, password string) error {
	var reply gfs.AuthenticateReply
	err := c.callMaster("Master.RPCAuthenticate", gfs.AuthenticateArg{Username: username, Password: password}, &reply)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.username = username
	c.otp = reply.OTP
	c.mu.Unlock()
	return nil
}

func (c *Client) currentOTP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otp
}

// discoverMaster returns the cached active master, or resolves one by
// iterating masterAddrs if there is none cached.
func (c *Client) discoverMaster() (gfs.ServerAddress, error) {
	c.mu.Lock()
	cached := c.cachedMaster
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	addr, err := util.DiscoverMaster(c.masterAddrs, gfs.DefaultRPCTimeout)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.cachedMaster = addr
	c.mu.Unlock()
	return addr, nil
}

func (c *Client) forgetMaster() {
	c.mu.Lock()
	c.cachedMaster = ""
	c.mu.Unlock()
}

// callMaster issues rpcname against the cached active master, rediscovering
// and retrying once if the cached address turns out stale (connection
// failure or NotLeader).
func (c *Client) callMaster(rpcname string, args interface{}, reply interface{}) error {
	addr, err := c.discoverMaster()
	if err != nil {
		return err
	}
	err = util.Call(addr, rpcname, args, reply)
	if err == nil {
		return nil
	}
	if gfs.CodeOf(err) == gfs.NotLeader || gfs.CodeOf(err) == gfs.Transient {
		log.Warningf("client: %v against %v failed (%v), rediscovering leader", rpcname, addr, err)
		c.forgetMaster()
		addr, derr := c.discoverMaster()
		if derr != nil {
			return err
		}
		return util.Call(addr, rpcname, args, reply)
	}
	return err
}

func (c *Client) assignChunks(fileName string, size int64) ([]gfs.ChunkInfo, error) {
	var reply gfs.AssignChunksReply
	err := c.callMaster("Master.RPCAssignChunks", gfs.AssignChunksArg{FileName: fileName, FileSize: size}, &reply)
	if err != nil {
		return nil, err
	}
	return reply.Chunks, nil
}

func (c *Client) getFileChunks(fileName string) ([]gfs.ChunkInfo, error) {
	var reply gfs.GetFileChunksReply
	err := c.callMaster("Master.RPCGetFileChunks", gfs.GetFileChunksArg{FileName: fileName}, &reply)
	if err != nil {
		return nil, err
	}
	return reply.Chunks, nil
}

// Upload writes data as a new file, splitting it into chunk_size-bounded
// slices and streaming each to the first replica of its chunk, which
// fans it out to the others (spec §4.5).
func (c *Client) Upload(fileName string, data []byte) error {
	chunks, err := c.assignChunks(fileName, int64(len(data)))
	if err != nil {
		return err
	}
	chunkSize := c.cfg.ChunkSize
	for i, ci := range chunks {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if err := c.uploadChunk(fileName, ci, data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadChunk(fileName string, ci gfs.ChunkInfo, data []byte) error {
	if len(ci.ServerAddrs) == 0 {
		return gfs.Errorf(gfs.ReplicaUnavailable, "chunk %v has no replicas", ci.ChunkHandle)
	}
	first := ci.ServerAddrs[0]
	args := gfs.UploadArg{
		Info:       gfs.FileInfo{FileName: fileName, ChunkIndex: indexFromHandle(ci.ChunkHandle, fileName)},
		Data:       data,
		OTP:        c.currentOTP(),
		IsInternal: false,
		Replicas:   ci.ServerAddrs,
	}
	var reply gfs.UploadReply
	return util.Call(first, "ChunkServer.RPCUpload", args, &reply)
}

// Read returns the full contents of a file by concatenating every
// chunk's bytes, reading each from a randomly chosen replica and
// retrying another on failure until all are exhausted (spec §4.5).
func (c *Client) Read(fileName string) ([]byte, error) {
	chunks, err := c.getFileChunks(fileName)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, ci := range chunks {
		data, err := c.readChunkAnyReplica(fileName, ci)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func (c *Client) readChunkAnyReplica(fileName string, ci gfs.ChunkInfo) ([]byte, error) {
	n := len(ci.ServerAddrs)
	if n == 0 {
		return nil, gfs.Errorf(gfs.ReplicaUnavailable, "chunk %v has no replicas", ci.ChunkHandle)
	}
	order, _ := util.Sample(n, n)

	var lastErr error
	for _, idx := range order {
		addr := ci.ServerAddrs[idx]
		var reply gfs.ReadReply
		err := util.Call(addr, "ChunkServer.RPCRead", gfs.ReadArg{
			FileName:   fileName,
			ChunkIndex: indexFromHandle(ci.ChunkHandle, fileName),
			OTP:        c.currentOTP(),
		}, &reply)
		if err == nil {
			return reply.Data, nil
		}
		lastErr = err
		log.Warningf("read %v from %v failed: %v, trying another replica", ci.ChunkHandle, addr, err)
	}
	return nil, gfs.Errorf(gfs.ReplicaUnavailable, "all replicas of %v failed, last error: %v", ci.ChunkHandle, lastErr)
}

// Append appends data to a file, targeting the last chunk and splitting
// across newly assigned chunks when it would overflow chunk_size (spec
// §4.5, §9: overflow is handled by the client as an explicit split
// followed by a fresh Upload of the new chunk, not an Append RPC).
func (c *Client) Append(fileName string, data []byte) error {
	chunks, err := c.getFileChunks(fileName)
	if gfs.CodeOf(err) == gfs.NotFound || (err == nil && len(chunks) == 0) {
		chunks, err = c.assignChunks(fileName, 1)
	}
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return gfs.Errorf(gfs.UnknownError, "file %q has no chunks to append to", fileName)
	}

	last := chunks[len(chunks)-1]
	curSize, err := c.chunkSize(fileName, last)
	if err != nil {
		return err
	}

	chunkSize := c.cfg.ChunkSize
	remaining := data
	if curSize+int64(len(remaining)) <= chunkSize {
		return c.appendToChunk(fileName, last, remaining)
	}

	fillLen := chunkSize - curSize
	if fillLen > 0 {
		if err := c.appendToChunk(fileName, last, remaining[:fillLen]); err != nil {
			return err
		}
		remaining = remaining[fillLen:]
	}
	if len(remaining) == 0 {
		return nil
	}
	return c.Upload(fileName, remaining)
}

// chunkSize reads the chunk's current byte length via the same Read path
// used for the client's read protocol; the RPC surface has no dedicated
// stat call, and a chunk's size is always small enough to read whole.
func (c *Client) chunkSize(fileName string, ci gfs.ChunkInfo) (int64, error) {
	data, err := c.readChunkAnyReplica(fileName, ci)
	if err != nil {
		if gfs.CodeOf(err) == gfs.NotFound || gfs.CodeOf(err) == gfs.ReplicaUnavailable {
			return 0, nil
		}
		return 0, err
	}
	return int64(len(data)), nil
}

func (c *Client) appendToChunk(fileName string, ci gfs.ChunkInfo, data []byte) error {
	if len(ci.ServerAddrs) == 0 {
		return gfs.Errorf(gfs.ReplicaUnavailable, "chunk %v has no replicas", ci.ChunkHandle)
	}
	first := ci.ServerAddrs[0]
	args := gfs.AppendArg{
		FileName:   fileName,
		ChunkIndex: indexFromHandle(ci.ChunkHandle, fileName),
		Data:       data,
		OTP:        c.currentOTP(),
		IsInternal: false,
		Replicas:   ci.ServerAddrs,
	}
	var reply gfs.AppendReply
	return util.Call(first, "ChunkServer.RPCAppend", args, &reply)
}

// Delete tells the master to remove a file; the master removes its
// metadata and then sends the delete to every replica of every chunk
// without waiting for the replicas to answer.
func (c *Client) Delete(fileName string) (bool, error) {
	var reply gfs.DeleteFileReply
	err := c.callMaster("Master.RPCDeleteFile", gfs.DeleteFileArg{FileName: fileName}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Success, nil
}

// indexFromHandle recovers the chunk index from a handle of the
// canonical form "<file_name>_chunk_<index>".
func indexFromHandle(handle gfs.ChunkHandle, fileName string) gfs.ChunkIndex {
	suffix := string(handle)[len(fileName)+len("_chunk_"):]
	var idx int64
	for _, r := range suffix {
		idx = idx*10 + int64(r-'0')
	}
	return gfs.ChunkIndex(idx)
}
