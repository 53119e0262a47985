package chunkserver

import (
	"os"
	"path/filepath"

	"gfs"
)

// chunkPath returns the on-disk path for a chunk, named "<file_name>_chunk_<index>"
// under the node's data path, per spec §6's persisted state layout.
func (cs *ChunkServer) chunkPath(fileName string, index gfs.ChunkIndex) string {
	return filepath.Join(cs.dataPath, string(gfs.NewChunkHandle(fileName, index)))
}

// writeChunk truncates and writes the chunk file (used by Upload).
func (cs *ChunkServer) writeChunk(fileName string, index gfs.ChunkIndex, data []byte) error {
	return os.WriteFile(cs.chunkPath(fileName, index), data, 0644)
}

// appendChunk appends data to the chunk file, creating it if absent.
func (cs *ChunkServer) appendChunk(fileName string, index gfs.ChunkIndex, data []byte) error {
	f, err := os.OpenFile(cs.chunkPath(fileName, index), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// readChunk returns the full contents of a chunk file.
func (cs *ChunkServer) readChunk(fileName string, index gfs.ChunkIndex) ([]byte, error) {
	data, err := os.ReadFile(cs.chunkPath(fileName, index))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gfs.Errorf(gfs.NotFound, "chunk %v not found", gfs.NewChunkHandle(fileName, index))
		}
		return nil, err
	}
	return data, nil
}

// deleteChunkFile removes the chunk file. Idempotent: a missing file is
// not an error, per spec §4.4's idempotence requirement for Delete.
func (cs *ChunkServer) deleteChunkFile(fileName string, index gfs.ChunkIndex) error {
	err := os.Remove(cs.chunkPath(fileName, index))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
