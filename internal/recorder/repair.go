package recorder

import (
	"io"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"
)

// Repair truncates the last segment in dir after its last complete batch.
// A crash during Flush can leave a partial record or a batch without its
// RecordBatchEnd; both were never acknowledged. It returns the number of
// bytes removed.
func Repair(cfg Config) (int64, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	pb, err := NewPlayback(PlaybackConfig{Dir: cfg.Dir, FilePrefix: cfg.FilePrefix})
	if err != nil {
		return 0, err
	}
	files, err := pb.collectFiles()
	if err != nil || len(files) == 0 {
		return 0, err
	}
	path := files[len(files)-1]

	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open journal segment")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, errors.Wrap(err, "stat journal segment")
	}

	reader := NewReader(f, ReaderOptions{})
	var offset, good int64
	for {
		header, payload, err := reader.Next()
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && err != ErrChecksumMismatch && err != ErrInvalidMagic {
				_ = f.Close()
				return 0, errors.Wrapf(err, "scan %s", filepath.Base(path))
			}
			break
		}
		offset += int64(recordHeaderSize + len(payload) + recordChecksumSize)
		if header.Type == RecordBatchEnd {
			good = offset
		}
	}
	if err := f.Close(); err != nil {
		return 0, errors.Wrap(err, "close journal segment")
	}

	removed := info.Size() - good
	if removed == 0 {
		return 0, nil
	}
	if err := os.Truncate(path, good); err != nil {
		return 0, errors.Wrap(err, "truncate journal segment")
	}
	return removed, nil
}
