package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// PlaybackConfig controls journal playback behavior.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
	// AllowTornTail ends playback quietly at a truncated record in the last
	// segment, which is what a crash during Flush leaves behind.
	AllowTornTail bool
}

// Playback replays journal records in segment order.
type Playback struct {
	cfg PlaybackConfig
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg}, nil
}

// Run replays journal records and calls the handler for each one.
func (p *Playback) Run(ctx context.Context, handler func(Header, []byte) error) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "playback handler")
	}
	files, err := p.collectFiles()
	if err != nil {
		return err
	}

	for i, path := range files {
		last := i == len(files)-1
		if err := p.playFile(ctx, path, last, handler); err != nil {
			return err
		}
	}
	return nil
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "playback: Dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "playback: MaxPayloadSize must be >= 0")
	}
	return nil
}

func (p *Playback) collectFiles() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read journal dir")
	}
	type segment struct {
		id   uint64
		path string
	}
	var segs []segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := segmentID(p.cfg.FilePrefix, entry.Name())
		if !ok {
			continue
		}
		segs = append(segs, segment{id: id, path: filepath.Join(p.cfg.Dir, entry.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	files := make([]string, 0, len(segs))
	for _, s := range segs {
		files = append(files, s.path)
	}
	return files, nil
}

func (p *Playback) playFile(ctx context.Context, path string, last bool, handler func(Header, []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open journal segment")
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if last && p.cfg.AllowTornTail && err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrapf(err, "read %s", path)
		}

		if err := handler(header, payload); err != nil {
			return err
		}
	}
}
