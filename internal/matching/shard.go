package matching

import (
	"sort"

	"github.com/yanun0323/errors"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// Config describes one matching shard.
type Config struct {
	ShardID   int
	Shards    int
	SelfTrade SelfTradePolicy
}

// Shard owns the order books of one partition of symbol ids. Not safe
// for concurrent use; the pipeline runs every shard on its own goroutine.
type Shard struct {
	id     int
	shards int
	stp    SelfTradePolicy
	books  map[schema.SymbolID]*OrderBook
}

// NewShard creates a shard with no books.
func NewShard(cfg Config) *Shard {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	return &Shard{
		id:     cfg.ShardID,
		shards: cfg.Shards,
		stp:    cfg.SelfTrade,
		books:  make(map[schema.SymbolID]*OrderBook),
	}
}

// ShardOf returns the matching shard that owns symbol.
func ShardOf(symbol schema.SymbolID, shards int) int {
	v := int64(symbol) % int64(shards)
	if v < 0 {
		v = -v
	}
	return int(v)
}

func (s *Shard) ID() int {
	return s.id
}

// Owns reports whether symbol belongs to this shard.
func (s *Shard) Owns(symbol schema.SymbolID) bool {
	return ShardOf(symbol, s.shards) == s.id
}

// Book returns the book of a symbol. Only safe on the shard goroutine or
// when the pipeline is stopped.
func (s *Shard) Book(symbol schema.SymbolID) (*OrderBook, bool) {
	b, ok := s.books[symbol]
	return b, ok
}

// Symbols returns the ids of every book in ascending order.
func (s *Shard) Symbols() []schema.SymbolID {
	out := make([]schema.SymbolID, 0, len(s.books))
	for id := range s.books {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Process applies cmd to the shard. Commands for symbols owned by other
// shards are ignored. A returned error is a structural fault: the book
// can no longer be trusted.
func (s *Shard) Process(cmd *schema.Command) (schema.ResultCode, error) {
	switch cmd.Kind {
	case schema.CommandBinaryData:
		if err := s.AddSymbols(cmd.Data); err != nil {
			return schema.ResultInternalError, err
		}
		return schema.ResultSuccess, nil
	case schema.CommandReset:
		s.Reset()
		return schema.ResultSuccess, nil
	case schema.CommandPlaceOrder, schema.CommandCancelOrder, schema.CommandReduceOrder, schema.CommandOrderBookRequest:
	default:
		return schema.ResultSuccess, nil
	}

	if !s.Owns(cmd.Symbol) {
		return schema.ResultSuccess, nil
	}
	book, ok := s.books[cmd.Symbol]
	if !ok {
		return schema.ResultUnknownSymbol, nil
	}

	var code schema.ResultCode
	switch cmd.Kind {
	case schema.CommandPlaceOrder:
		code = book.Place(cmd, s.stp)
	case schema.CommandCancelOrder:
		code = book.Cancel(cmd)
	case schema.CommandReduceOrder:
		code = book.Reduce(cmd)
	case schema.CommandOrderBookRequest:
		md := book.L2(int(cmd.Size))
		md.Seq = cmd.Seq
		cmd.MarketData = &md
		return schema.ResultSuccess, nil
	}
	if err := book.CheckCrossed(); err != nil {
		return schema.ResultInternalError, errors.Wrap(err, "after "+cmd.Kind.String()).With("seq", cmd.Seq)
	}
	return code, nil
}

// AddSymbols creates a book for every owned symbol in a binary data
// payload. Known symbols keep their book and spec.
func (s *Shard) AddSymbols(data []byte) error {
	specs, ok := codec.DecodeSymbolBatch(data)
	if !ok {
		return errors.Wrap(exception.ErrInvalidCommand, "decode symbol batch")
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if !s.Owns(spec.ID) {
			continue
		}
		if _, ok := s.books[spec.ID]; ok {
			continue
		}
		s.books[spec.ID] = NewOrderBook(spec)
	}
	return nil
}

// Reset drops every book.
func (s *Shard) Reset() {
	s.books = make(map[schema.SymbolID]*OrderBook)
}

// Validate checks the structural invariants of every book.
func (s *Shard) Validate() error {
	for _, id := range s.Symbols() {
		if err := s.books[id].Validate(); err != nil {
			return err
		}
	}
	return nil
}
