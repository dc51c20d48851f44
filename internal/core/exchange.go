package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/bus"
	"exchange/internal/journal"
	"exchange/internal/matching"
	"exchange/internal/risk"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

type lifecycle int32

const (
	stateNew lifecycle = iota
	stateStarting
	stateRunning
	stateClosing
	stateClosed
)

// Exchange is the command pipeline.
//
// Submit methods are safe for concurrent use; the sequencer serializes
// them. Shard state is only touched by the shard goroutines.
type Exchange struct {
	cfg       Config
	processor journal.Processor
	consumer  ResultConsumer

	ring     *bus.Ring[*slot]
	risks    []*riskWorker
	matchers []*matchWorker
	journal  *journalWorker

	journalSeq *bus.Sequence
	publishSeq *bus.Sequence

	mu    sync.Mutex
	state atomic.Int32
	ctx   context.Context
	wg    sync.WaitGroup

	faultMu sync.Mutex
	fault   error
}

// New builds a pipeline. The processor is not owned by the exchange;
// close it after Shutdown.
func New(cfg Config, processor journal.Processor, consumer ResultConsumer) (*Exchange, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "journal processor")
	}

	ring, err := bus.NewRing(cfg.RingSize, newSlotFactory(cfg.RiskShards, cfg.MatchingShards), cfg.WaitStrategy)
	if err != nil {
		return nil, errors.Wrap(err, "new ring")
	}
	// The first command gets sequence 1.
	ring.ResetTo(0)

	e := &Exchange{
		cfg:       cfg,
		processor: processor,
		consumer:  consumer,
		ring:      ring,
		risks:     make([]*riskWorker, cfg.RiskShards),
		matchers:  make([]*matchWorker, cfg.MatchingShards),
	}
	for i := range e.risks {
		e.risks[i] = &riskWorker{
			id: i,
			shard: risk.NewShard(risk.Config{
				ShardID: i,
				Shards:  cfg.RiskShards,
				Policy:  cfg.Policy,
			}),
		}
	}
	for i := range e.matchers {
		e.matchers[i] = &matchWorker{
			id: i,
			shard: matching.NewShard(matching.Config{
				ShardID:   i,
				Shards:    cfg.MatchingShards,
				SelfTrade: cfg.SelfTrade,
			}),
		}
	}
	e.journal = &journalWorker{}
	cfg.Metrics.SetStallSource(ring.Stalls)
	return e, nil
}

// Start restores the configured state, starts every stage and returns
// once replayed commands have passed the whole pipeline.
func (e *Exchange) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(stateNew), int32(stateStarting)) {
		return exception.ErrAlreadyStarted
	}
	e.ctx = context.WithoutCancel(ctx)

	var replay []schema.Command
	if e.cfg.LoadStateID != 0 {
		boundary, records, err := e.restore(ctx)
		if err != nil {
			e.state.Store(int32(stateClosed))
			return errors.Wrapf(err, "restore state %d", e.cfg.LoadStateID)
		}
		e.ring.ResetTo(boundary)
		replay = records
	}

	e.startStages()

	if len(replay) > 0 {
		if err := e.replay(ctx, replay); err != nil {
			e.halt(err)
			e.ring.Alert()
			e.wg.Wait()
			e.state.Store(int32(stateClosed))
			return err
		}
	}

	e.state.Store(int32(stateRunning))
	logs.Infof("exchange started, risk shards: %d, matching shards: %d, seq: %d",
		e.cfg.RiskShards, e.cfg.MatchingShards, e.ring.Cursor().Get())
	return nil
}

// startStages creates the consumers and their goroutines. Consumers start
// after the current cursor, so it must run after ResetTo.
func (e *Exchange) startStages() {
	cursor := e.ring.Cursor().Get()
	for _, w := range e.risks {
		w.held = bus.NewSequence(cursor)
		w.released = bus.NewSequence(cursor)
	}

	held := make([]*bus.Sequence, len(e.risks))
	released := make([]*bus.Sequence, len(e.risks))
	for i, w := range e.risks {
		held[i] = w.held
		released[i] = w.released
	}

	matchSeqs := make([]*bus.Sequence, len(e.matchers))
	matchConsumers := make([]*bus.Consumer[*slot], len(e.matchers))
	for i, w := range e.matchers {
		c := e.ring.NewConsumer(e.ring.NewBarrier(held...), e.matchHandler(w), e.cfg.GroupLimit)
		matchConsumers[i] = c
		matchSeqs[i] = c.Sequence()
	}

	journalConsumer := e.ring.NewConsumer(e.ring.NewBarrier(released...), e.journalHandler(), e.cfg.JournalBatchSize)
	publisher := e.ring.NewConsumer(e.ring.NewBarrier(journalConsumer.Sequence()), e.publishHandler(), 0)
	e.journalSeq = journalConsumer.Sequence()
	e.publishSeq = publisher.Sequence()
	e.ring.SetGating(e.publishSeq)

	for _, w := range e.risks {
		w := w
		e.spawn(w.name(), func() error { return e.runRisk(w, matchSeqs) })
	}
	for i, c := range matchConsumers {
		e.spawn(e.matchers[i].name(), c.Run)
	}
	e.spawn("journal", journalConsumer.Run)
	e.spawn("publisher", publisher.Run)
}

// Submit sequences one command and returns its sequence number. Blocks
// while the ring is full.
func (e *Exchange) Submit(cmd *schema.Command) (int64, error) {
	if err := validate(cmd); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.accepting(); err != nil {
		return 0, err
	}
	seq, err := e.ring.Next()
	if err != nil {
		return 0, e.claimErr(err)
	}
	e.fill(seq, cmd)
	e.ring.Publish(seq)
	return seq, nil
}

// TrySubmit is Submit without waiting. A full ring fails with
// exception.ErrRingFull and nothing is sequenced.
func (e *Exchange) TrySubmit(cmd *schema.Command) (int64, error) {
	if err := validate(cmd); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.accepting(); err != nil {
		return 0, err
	}
	seq, err := e.ring.TryNext()
	if err != nil {
		return 0, e.claimErr(err)
	}
	e.fill(seq, cmd)
	e.ring.Publish(seq)
	return seq, nil
}

// SubmitBatch sequences cmds back to back and returns the sequence of the
// first one. Either every command is validated and sequenced, or none is
// validated and the first validation error is returned.
func (e *Exchange) SubmitBatch(cmds []schema.Command) (int64, error) {
	if len(cmds) == 0 {
		return 0, errors.Wrap(exception.ErrInvalidCommand, "empty batch")
	}
	for i := range cmds {
		if err := validate(&cmds[i]); err != nil {
			return 0, errors.Wrapf(err, "batch index %d", i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.accepting(); err != nil {
		return 0, err
	}
	first := int64(0)
	for i := range cmds {
		seq, err := e.ring.Next()
		if err != nil {
			return 0, e.claimErr(err)
		}
		if i == 0 {
			first = seq
		}
		e.fill(seq, &cmds[i])
	}
	e.ring.Publish(first + int64(len(cmds)) - 1)
	return first, nil
}

func (e *Exchange) fill(seq int64, cmd *schema.Command) {
	sl := e.ring.Get(seq)
	sl.reset()
	sl.cmd.SetInput(cmd)
	sl.cmd.Seq = seq
	sl.cmd.Replay = false
	if sl.cmd.Kind == schema.CommandPlaceOrder && sl.cmd.OrderType == 0 {
		sl.cmd.OrderType = schema.OrderTypeGTC
	}
	now := time.Now().UnixNano()
	if sl.cmd.Timestamp == 0 {
		sl.cmd.Timestamp = now
	}
	sl.submitted = now
}

func (e *Exchange) accepting() error {
	switch lifecycle(e.state.Load()) {
	case stateNew, stateStarting:
		return exception.ErrNotStarted
	case stateClosing, stateClosed:
		return exception.ErrClosed
	}
	if e.Err() != nil {
		return exception.ErrHalted
	}
	return nil
}

func (e *Exchange) claimErr(err error) error {
	if err == exception.ErrAlerted {
		if e.Err() != nil {
			return exception.ErrHalted
		}
		return exception.ErrClosed
	}
	return err
}

// Err returns the fault that halted the pipeline, if any.
func (e *Exchange) Err() error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	return e.fault
}

// Published returns the highest sequence delivered to the consumer.
func (e *Exchange) Published() int64 {
	if e.publishSeq == nil {
		return e.ring.Cursor().Get()
	}
	return e.publishSeq.Get()
}

// Shutdown stops accepting commands, waits until every sequenced command
// has been published and stops the stages. In-flight commands are
// abandoned when ctx ends first or the pipeline halted.
func (e *Exchange) Shutdown(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(stateRunning), int32(stateClosing)) {
		if lifecycle(e.state.Load()) == stateNew {
			e.state.Store(int32(stateClosed))
			return nil
		}
		return exception.ErrClosed
	}

	// Waits for a Submit blocked on a full ring.
	e.mu.Lock()
	last := e.ring.Cursor().Get()
	e.mu.Unlock()

	err := e.waitPublished(ctx, last)
	e.ring.Alert()
	e.wg.Wait()
	e.state.Store(int32(stateClosed))

	if err != nil {
		return errors.Wrapf(err, "shutdown at seq %d, published %d", last, e.publishSeq.Get())
	}
	logs.Infof("exchange stopped, seq: %d", last)
	return e.Err()
}

// waitPublished blocks until the publisher has delivered seq.
func (e *Exchange) waitPublished(ctx context.Context, seq int64) error {
	ticker := time.NewTicker(100 * time.Microsecond)
	defer ticker.Stop()
	for e.publishSeq.Get() < seq {
		if err := e.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
