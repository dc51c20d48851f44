package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/pkg/exception"
)

type record struct {
	header  Header
	payload string
}

func collect(t *testing.T, cfg PlaybackConfig) []record {
	t.Helper()
	pb, err := NewPlayback(cfg)
	require.NoError(t, err)
	var out []record
	require.NoError(t, pb.Run(context.Background(), func(h Header, payload []byte) error {
		out = append(out, record{header: h, payload: string(payload)})
		return nil
	}))
	return out
}

func TestWriterPlaybackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, NoSync: true})
	require.NoError(t, err)

	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 1, BatchID: 1, Timestamp: 10}, []byte("a")))
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 2, BatchID: 1, Timestamp: 11}, []byte("bb")))
	require.NoError(t, w.Append(Header{Type: RecordBatchEnd, Seq: 2, BatchID: 1}, nil))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(Header{}, nil), ErrClosed)

	got := collect(t, PlaybackConfig{Dir: dir})
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].payload)
	assert.EqualValues(t, 2, got[1].header.Seq)
	assert.Equal(t, "bb", got[1].payload)
	assert.Equal(t, RecordBatchEnd, got[2].header.Type)
	assert.Empty(t, got[2].payload)
}

func TestWriterContinuesSegmentNumbering(t *testing.T) {
	dir := t.TempDir()
	for i := int64(0); i < 3; i++ {
		w, err := NewWriter(Config{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: i}, []byte{byte(i)}))
		require.NoError(t, w.Close())
	}

	got := collect(t, PlaybackConfig{Dir: dir})
	require.Len(t, got, 3)
	for i, r := range got {
		assert.EqualValues(t, i, r.header.Seq)
	}
}

func TestWriterRotatesOnBatchBoundary(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, SegmentMaxBytes: recordHeaderSize + recordChecksumSize + 8, NoSync: true})
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 2 * i}, []byte("12345678")))
		require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 2*i + 1}, []byte("12345678")))
		require.NoError(t, w.Append(Header{Type: RecordBatchEnd, BatchID: i}, nil))
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Len(t, collect(t, PlaybackConfig{Dir: dir}), 9)
}

func TestRepairDropsIncompleteBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 1, BatchID: 1}, []byte("one")))
	require.NoError(t, w.Append(Header{Type: RecordBatchEnd, Seq: 1, BatchID: 1}, nil))
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 2, BatchID: 2}, []byte("two")))
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 3, BatchID: 2}, []byte("three")))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, entries[0].Name())
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	removed, err := Repair(Config{Dir: dir})
	require.NoError(t, err)
	assert.Positive(t, removed)

	got := collect(t, PlaybackConfig{Dir: dir})
	require.Len(t, got, 2)
	assert.Equal(t, RecordBatchEnd, got[1].header.Type)

	removed, err = Repair(Config{Dir: dir})
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPlaybackDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 1}, []byte("payload")))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, entries[0].Name())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[recordHeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	err = pb.Run(context.Background(), func(Header, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestPlaybackTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 1}, []byte("first")))
	require.NoError(t, w.Append(Header{Type: RecordCommand, Seq: 2}, []byte("second")))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, entries[0].Name())
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	assert.Error(t, pb.Run(context.Background(), func(Header, []byte) error { return nil }))

	got := collect(t, PlaybackConfig{Dir: dir, AllowTornTail: true})
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].payload)
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), exception.ErrInvalidConfig)
	assert.NoError(t, DefaultConfig("x").Validate())
	_, err := NewPlayback(PlaybackConfig{Dir: "x", MaxPayloadSize: -1})
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
}
