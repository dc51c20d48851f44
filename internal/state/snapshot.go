// Package state stores shard snapshots as files.
package state

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/internal/journal"
	"exchange/pkg/exception"
)

const fileVersion = 1

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// file is the on-disk form of a shard snapshot.
type file struct {
	Version   int             `json:"version"`
	StateID   int64           `json:"stateId"`
	Shard     journal.ShardID `json:"shard"`
	Seq       int64           `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Checksum  uint32          `json:"checksum"`
	Data      []byte          `json:"data"`
}

// Path returns the file path of a shard snapshot inside dir.
func Path(dir string, stateID int64, shard journal.ShardID) string {
	return filepath.Join(dir, fileName(stateID, shard))
}

// WriteSnapshot writes a snapshot to disk. The file is written to a
// temporary name and renamed, so a reader never sees a partial file.
func WriteSnapshot(path string, snap journal.Snapshot) error {
	data, err := sonic.Marshal(file{
		Version:   fileVersion,
		StateID:   snap.StateID,
		Shard:     snap.Shard,
		Seq:       snap.Seq,
		Timestamp: time.Now().UTC().UnixNano(),
		Checksum:  crc32.Checksum(snap.Data, crcTable),
		Data:      snap.Data,
	})
	if err != nil {
		return errors.Wrap(err, "marshal snapshot file")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir")
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create snapshot file")
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write snapshot file")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync snapshot file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close snapshot file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "rename snapshot file")
	}
	return nil
}

// ReadSnapshot loads a snapshot from disk and verifies its checksum.
func ReadSnapshot(path string) (journal.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotNotFound, "%s", path)
		}
		return journal.Snapshot{}, errors.Wrap(err, "read snapshot file")
	}
	var f file
	if err := sonic.Unmarshal(data, &f); err != nil {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotCorrupted, "%s: %v", path, err)
	}
	if f.Version != fileVersion {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotCorrupted, "%s: version %d", path, f.Version)
	}
	if crc32.Checksum(f.Data, crcTable) != f.Checksum {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotCorrupted, "%s: checksum mismatch", path)
	}
	return journal.Snapshot{
		StateID: f.StateID,
		Shard:   f.Shard,
		Seq:     f.Seq,
		Data:    f.Data,
	}, nil
}

// CompareSnapshots checks if two shard snapshots hold the same state.
func CompareSnapshots(expected, actual journal.Snapshot) error {
	if expected.Shard != actual.Shard {
		return errors.Errorf("snapshot shard mismatch: expected=%s actual=%s", expected.Shard, actual.Shard)
	}
	if !bytes.Equal(expected.Data, actual.Data) {
		return errors.Errorf("snapshot state mismatch: shard=%s expected %d bytes, actual %d bytes", expected.Shard, len(expected.Data), len(actual.Data))
	}
	return nil
}
