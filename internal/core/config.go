package core

import (
	"github.com/yanun0323/errors"

	"exchange/internal/bus"
	"exchange/internal/matching"
	"exchange/internal/obs"
	"exchange/internal/risk"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

const (
	defaultRingSize         = 64 * 1024
	defaultGroupLimit       = 128
	defaultJournalBatchSize = 128
)

// ResultConsumer receives every processed command once, in sequence
// order. The command lives in a ring slot that is reused after the call
// returns; use Command.Copy to keep it.
type ResultConsumer func(cmd *schema.Command)

// Config controls the pipeline.
type Config struct {
	// RingSize is the number of slots of the command ring. Power of two.
	RingSize       int
	RiskShards     int
	MatchingShards int
	// GroupLimit caps how many commands a risk shard holds before it
	// waits for matching and settles them.
	GroupLimit int
	// JournalBatchSize caps the number of records per journal batch.
	JournalBatchSize int
	// LoadStateID selects the snapshot to recover from. Zero starts
	// empty.
	LoadStateID int64

	WaitStrategy bus.WaitStrategy
	SelfTrade    matching.SelfTradePolicy
	Policy       risk.Policy

	// OnFault is called once with the first structural fault.
	OnFault func(err error)
	Metrics *obs.Metrics
}

// DefaultConfig returns a single shard configuration.
func DefaultConfig() Config {
	return Config{
		RingSize:         defaultRingSize,
		RiskShards:       1,
		MatchingShards:   1,
		GroupLimit:       defaultGroupLimit,
		JournalBatchSize: defaultJournalBatchSize,
	}
}

func (c Config) withDefaults() Config {
	if c.RingSize == 0 {
		c.RingSize = defaultRingSize
	}
	if c.RiskShards == 0 {
		c.RiskShards = 1
	}
	if c.MatchingShards == 0 {
		c.MatchingShards = 1
	}
	if c.GroupLimit == 0 {
		c.GroupLimit = defaultGroupLimit
	}
	if c.JournalBatchSize == 0 {
		c.JournalBatchSize = defaultJournalBatchSize
	}
	if c.WaitStrategy == nil {
		c.WaitStrategy = bus.YieldingWait{}
	}
	if c.Policy == nil {
		c.Policy = risk.DefaultPolicy{}
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.RingSize <= 0 || c.RingSize&(c.RingSize-1) != 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "core: RingSize %d is not a power of two", c.RingSize)
	}
	if c.RiskShards <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "core: RiskShards must be > 0")
	}
	if c.MatchingShards <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "core: MatchingShards must be > 0")
	}
	if c.GroupLimit <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "core: GroupLimit must be > 0")
	}
	if c.JournalBatchSize <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "core: JournalBatchSize must be > 0")
	}
	if c.LoadStateID < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "core: LoadStateID must be >= 0")
	}
	if c.GroupLimit > c.RingSize {
		return errors.Wrap(exception.ErrInvalidConfig, "core: GroupLimit above RingSize")
	}
	return nil
}
