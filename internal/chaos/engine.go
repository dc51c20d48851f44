package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	// MaxDelay shifts command timestamps forward by up to this much.
	MaxDelay time.Duration
}

// Engine applies chaos rules to a command stream before it reaches the
// sequencer.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []schema.Command
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: maxDelay must be >= 0")
	}
	return nil
}

// Process applies chaos to a single command and returns the commands to
// submit.
func (e *Engine) Process(cmd schema.Command) []schema.Command {
	if e == nil {
		return []schema.Command{cmd}
	}
	if e.shouldDrop() {
		return nil
	}
	cmd = e.applyDelay(cmd)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(cmd)
	}
	e.pending = append(e.pending, cmd)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Flush returns any buffered commands after processing completes.
func (e *Engine) Flush() []schema.Command {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]schema.Command, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		cmd := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(cmd)...)
	}
	return out
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(cmd schema.Command) []schema.Command {
	out := []schema.Command{cmd}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, cmd)
	}
	return out
}

func (e *Engine) applyDelay(cmd schema.Command) schema.Command {
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 || cmd.Timestamp <= 0 {
		return cmd
	}
	cmd.Timestamp += e.rng.Int63n(maxDelay + 1)
	return cmd
}
