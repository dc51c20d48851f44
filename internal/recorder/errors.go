package recorder

import "errors"

var (
	ErrClosed                  = errors.New("recorder: writer closed")
	ErrPayloadTooLarge         = errors.New("recorder: payload too large")
	ErrChecksumMismatch        = errors.New("recorder: checksum mismatch")
	ErrInvalidMagic            = errors.New("recorder: invalid magic")
	ErrUnsupportedRecordVer    = errors.New("recorder: unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("recorder: invalid header size")
)
