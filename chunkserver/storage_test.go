package chunkserver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gfs"
	"gfs/util"
)

func newTestChunkServer(t *testing.T) *ChunkServer {
	t.Helper()
	return &ChunkServer{
		address:       "test:0",
		dataPath:      t.TempDir(),
		locks:         make(map[gfs.ChunkHandle]*sync.Mutex),
		pendingChunks: &util.ArraySet{},
	}
}

func TestWriteThenReadChunk(t *testing.T) {
	cs := newTestChunkServer(t)
	require.NoError(t, cs.writeChunk("f.txt", 0, []byte("hello")))

	data, err := cs.readChunk("f.txt", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestWriteChunkTruncatesPriorContent(t *testing.T) {
	cs := newTestChunkServer(t)
	require.NoError(t, cs.writeChunk("f.txt", 0, []byte("a long first write")))
	require.NoError(t, cs.writeChunk("f.txt", 0, []byte("short")))

	data, err := cs.readChunk("f.txt", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("short"), data)
}

func TestAppendChunkCreatesThenGrows(t *testing.T) {
	cs := newTestChunkServer(t)
	require.NoError(t, cs.appendChunk("f.txt", 0, []byte("abc")))
	require.NoError(t, cs.appendChunk("f.txt", 0, []byte("def")))

	data, err := cs.readChunk("f.txt", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdef"), data)
}

func TestReadChunkMissingIsNotFound(t *testing.T) {
	cs := newTestChunkServer(t)
	_, err := cs.readChunk("ghost.txt", 0)
	require.Error(t, err)
	require.Equal(t, gfs.NotFound, gfs.CodeOf(err))
}

func TestDeleteChunkFileIsIdempotent(t *testing.T) {
	cs := newTestChunkServer(t)
	require.NoError(t, cs.writeChunk("f.txt", 0, []byte("x")))
	require.NoError(t, cs.deleteChunkFile("f.txt", 0))
	require.NoError(t, cs.deleteChunkFile("f.txt", 0), "deleting an already-absent chunk must not error")

	_, err := cs.readChunk("f.txt", 0)
	require.Error(t, err)
}

func TestChunkPathUsesChunkHandleNaming(t *testing.T) {
	cs := newTestChunkServer(t)
	path := cs.chunkPath("f.txt", 3)
	require.Contains(t, path, string(gfs.NewChunkHandle("f.txt", 3)))
}
