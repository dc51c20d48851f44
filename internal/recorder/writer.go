package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

const maxPayloadLen = uint64(^uint32(0))

// Writer appends records to journal segments. Appends are buffered until
// Flush. Segments only rotate after a RecordBatchEnd record, so a batch
// never spans two segments. Not safe for concurrent use.
type Writer struct {
	cfg         Config
	seg         *segmentWriter
	segID       uint64
	boundary    bool
	headerBuf   []byte
	checksumBuf [recordChecksumSize]byte
	err         error
	closed      bool
}

// NewWriter creates a journal writer and ensures the target directory
// exists. New segments are numbered after the existing ones.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}
	last, err := lastSegmentID(cfg.Dir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	return &Writer{
		cfg:       cfg,
		segID:     last,
		boundary:  true,
		headerBuf: make([]byte, recordHeaderSize),
	}, nil
}

// Append buffers one record.
func (w *Writer) Append(header Header, payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if err := w.writeRecord(header, payload); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Flush writes buffered records to the segment file and syncs it unless
// NoSync is set.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.seg == nil {
		return nil
	}
	if err := w.seg.buf.Flush(); err != nil {
		w.err = errors.Wrap(err, "flush journal segment")
		return w.err
	}
	if w.cfg.NoSync {
		return nil
	}
	if err := w.seg.file.Sync(); err != nil {
		w.err = errors.Wrap(err, "sync journal segment")
		return w.err
	}
	return nil
}

// Close flushes and closes the current segment.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.closeSegment(w.seg)
	w.seg = nil
	if w.err != nil {
		return w.err
	}
	return err
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) writeRecord(header Header, payload []byte) error {
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}

	now := time.Now().UTC()
	recordSize := int64(recordHeaderSize + len(payload) + recordChecksumSize)
	if w.shouldRotate(now, recordSize) {
		if err := w.closeSegment(w.seg); err != nil {
			return err
		}
		opened, err := w.openSegment(now)
		if err != nil {
			return err
		}
		w.seg = opened
	}

	encodeHeader(w.headerBuf, header, len(payload))
	sum := checksum(w.headerBuf, payload)
	binary.LittleEndian.PutUint32(w.checksumBuf[:], sum)

	if _, err := w.seg.buf.Write(w.headerBuf); err != nil {
		return errors.Wrap(err, "write record header")
	}
	if len(payload) > 0 {
		if _, err := w.seg.buf.Write(payload); err != nil {
			return errors.Wrap(err, "write record payload")
		}
	}
	if _, err := w.seg.buf.Write(w.checksumBuf[:]); err != nil {
		return errors.Wrap(err, "write record checksum")
	}

	w.seg.size += recordSize
	w.boundary = header.Type == RecordBatchEnd
	return nil
}

func (w *Writer) shouldRotate(now time.Time, nextSize int64) bool {
	seg := w.seg
	if seg == nil {
		return true
	}
	if seg.size == 0 || !w.boundary {
		return false
	}
	if w.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	if w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (w *Writer) closeSegment(seg *segmentWriter) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "flush journal segment")
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "sync journal segment")
	}
	return seg.file.Close()
}

func (w *Writer) openSegment(now time.Time) (*segmentWriter, error) {
	for {
		w.segID++
		path := filepath.Join(w.cfg.Dir, segmentName(w.cfg.FilePrefix, w.segID, now))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrap(err, "open journal segment")
		}
		return &segmentWriter{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

// segmentName sorts by segment id: prefix-000001-20060102-150405.wal.
func segmentName(prefix string, id uint64, now time.Time) string {
	return fmt.Sprintf("%s-%06d-%s.wal", prefix, id, now.Format("20060102-150405"))
}

func segmentID(prefix, name string) (uint64, bool) {
	if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".wal") {
		return 0, false
	}
	rest := strings.TrimPrefix(name, prefix+"-")
	idx := strings.IndexByte(rest, '-')
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(rest[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func lastSegmentID(dir, prefix string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(err, "read journal dir")
	}
	var last uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := segmentID(prefix, entry.Name()); ok && id > last {
			last = id
		}
	}
	return last, nil
}

type segmentWriter struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}
