package exception

import "errors"

var (
	ErrRingFull       = errors.New("exchange: ring buffer full")
	ErrAlerted        = errors.New("exchange: ring buffer alerted")
	ErrClosed         = errors.New("exchange: closed")
	ErrHalted         = errors.New("exchange: halted by fault")
	ErrNotStarted     = errors.New("exchange: not started")
	ErrAlreadyStarted = errors.New("exchange: already started")
	ErrInvalidCommand = errors.New("exchange: invalid command")
	ErrInvalidConfig  = errors.New("exchange: invalid config")
	ErrInvalidSymbol  = errors.New("exchange: invalid symbol spec")
	ErrSequenceGap    = errors.New("exchange: sequence gap")
	ErrWorkerPanicked = errors.New("exchange: worker panicked")
)

var (
	ErrCrossedBook     = errors.New("matching: crossed book")
	ErrBookCorrupted   = errors.New("matching: order book corrupted")
	ErrHoldNotFound    = errors.New("risk: hold not found")
	ErrHoldOverrelease = errors.New("risk: hold released beyond reservation")
)

var (
	ErrStateNotFound      = errors.New("journal: state not found")
	ErrSnapshotNotFound   = errors.New("journal: snapshot not found")
	ErrSnapshotCorrupted  = errors.New("journal: snapshot corrupted")
	ErrRecordCorrupted    = errors.New("journal: record corrupted")
	ErrShardCountMismatch = errors.New("journal: shard count mismatch")
	ErrProcessorClosed    = errors.New("journal: processor closed")
)
