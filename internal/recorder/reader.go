package recorder

import (
	"bufio"
	"encoding/binary"
	"io"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes records one frame at a time. A frame is the header, the
// payload and the trailing checksum.
type Reader struct {
	src   *bufio.Reader
	opts  ReaderOptions
	frame []byte
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		src:   bufio.NewReader(r),
		opts:  opts,
		frame: make([]byte, recordHeaderSize, recordHeaderSize+recordChecksumSize+256),
	}
}

// Next returns the next record. The payload aliases an internal buffer
// and is overwritten by the following call. A clean end of input is
// io.EOF; a frame cut short is io.ErrUnexpectedEOF.
func (r *Reader) Next() (Header, []byte, error) {
	r.frame = r.frame[:recordHeaderSize]
	if _, err := io.ReadFull(r.src, r.frame); err != nil {
		return Header{}, nil, err
	}
	header, n, err := decodeRecordHeader(r.frame)
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && int64(n) > int64(r.opts.MaxPayloadSize) {
		return header, nil, ErrPayloadTooLarge
	}

	end := recordHeaderSize + int(n)
	r.frame = grow(r.frame, end+recordChecksumSize)
	if _, err := io.ReadFull(r.src, r.frame[recordHeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return header, nil, err
	}

	if !r.opts.DisableChecksum {
		want := binary.LittleEndian.Uint32(r.frame[end:])
		if checksum(r.frame[:recordHeaderSize], r.frame[recordHeaderSize:end]) != want {
			return header, nil, ErrChecksumMismatch
		}
	}
	return header, r.frame[recordHeaderSize:end], nil
}

// grow resizes buf to n bytes, keeping its prefix.
func grow(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}
