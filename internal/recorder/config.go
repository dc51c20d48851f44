package recorder

import (
	"time"

	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 1 << 30
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "journal"
)

var defaultSegmentMaxDuration = 5 * time.Minute

// Config controls journal writer behavior.
type Config struct {
	Dir                string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	BufferSize         int
	FilePrefix         string
	// NoSync skips fsync on Flush. Records then survive a process crash
	// but not a power loss.
	NoSync bool
}

// DefaultConfig returns a baseline configuration for the journal writer.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "recorder: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "recorder: SegmentMaxBytes must be > 0")
	}
	if c.SegmentMaxDuration < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "recorder: SegmentMaxDuration must be >= 0")
	}
	if c.BufferSize <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "recorder: BufferSize must be > 0")
	}
	if c.FilePrefix == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "recorder: FilePrefix is empty")
	}
	return nil
}
