package risk

import (
	"github.com/yanun0323/errors"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// Config describes one risk shard.
type Config struct {
	ShardID int
	Shards  int
	Policy  Policy
}

// Shard owns the user profiles of one partition of user ids.
//
// The hold stage (PreProcess) and the release stage (PostProcess) must
// run on the same goroutine.
type Shard struct {
	id     int
	shards int
	policy Policy

	users   map[schema.UserID]*UserProfile
	symbols map[schema.SymbolID]*schema.SymbolSpec
	fees    map[schema.Currency]int64
}

// NewShard creates an empty shard.
func NewShard(cfg Config) *Shard {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy{}
	}
	return &Shard{
		id:      cfg.ShardID,
		shards:  cfg.Shards,
		policy:  cfg.Policy,
		users:   make(map[schema.UserID]*UserProfile),
		symbols: make(map[schema.SymbolID]*schema.SymbolSpec),
		fees:    make(map[schema.Currency]int64),
	}
}

// ShardOf returns the risk shard that owns uid.
func ShardOf(uid schema.UserID, shards int) int {
	v := int64(uid) % int64(shards)
	if v < 0 {
		v = -v
	}
	return int(v)
}

func (s *Shard) ID() int {
	return s.id
}

// Owns reports whether uid belongs to this shard.
func (s *Shard) Owns(uid schema.UserID) bool {
	return ShardOf(uid, s.shards) == s.id
}

// EndsGroup reports whether the hold stage must stop after cmd and wait
// for its release stage before holding anything else.
func (s *Shard) EndsGroup(cmd *schema.Command) bool {
	switch cmd.Kind {
	case schema.CommandAddUser,
		schema.CommandBalanceAdjustment,
		schema.CommandCancelOrder,
		schema.CommandReduceOrder,
		schema.CommandOrderBookRequest,
		schema.CommandPersistStateMatching,
		schema.CommandNop:
		return false
	case schema.CommandPlaceOrder:
		spec, ok := s.symbols[cmd.Symbol]
		return ok && spec.Type == schema.SymbolTypeFuturesContract
	default:
		return true
	}
}

// PreProcess runs the hold stage for cmd.
//
// settled reports that every earlier command has passed the release
// stage of this shard. When it is false, outcomes that earlier
// settlements could change are deferred: retry is true and nothing was
// mutated.
func (s *Shard) PreProcess(cmd *schema.Command, settled bool) (code schema.ResultCode, retry bool, err error) {
	switch cmd.Kind {
	case schema.CommandAddUser:
		if !s.Owns(cmd.UID) {
			return schema.ResultSuccess, false, nil
		}
		return s.AddUser(cmd.UID), false, nil
	case schema.CommandBalanceAdjustment:
		if !s.Owns(cmd.UID) {
			return schema.ResultSuccess, false, nil
		}
		return s.AdjustBalance(cmd.UID, cmd.Currency, cmd.Amount, cmd.TransactionID), false, nil
	case schema.CommandPlaceOrder:
		if !s.Owns(cmd.UID) {
			return schema.ResultSuccess, false, nil
		}
		code, retry = s.Hold(cmd, settled)
		return code, retry, nil
	case schema.CommandBinaryData:
		if !settled {
			return schema.ResultNew, true, nil
		}
		code, err := s.AddSymbols(cmd.Data)
		if err != nil {
			return schema.ResultInternalError, false, err
		}
		return code, false, nil
	default:
		return schema.ResultSuccess, false, nil
	}
}

// PostProcess runs the release stage for cmd. holdResult is the outcome
// of the hold stage of the shard that owns cmd.UID.
func (s *Shard) PostProcess(cmd *schema.Command, holdResult schema.ResultCode) (schema.ResultCode, error) {
	switch cmd.Kind {
	case schema.CommandPlaceOrder:
		if holdResult != schema.ResultSuccess {
			return holdResult, nil
		}
		return schema.ResultSuccess, s.Settle(cmd)
	case schema.CommandCancelOrder, schema.CommandReduceOrder:
		return schema.ResultSuccess, s.Settle(cmd)
	case schema.CommandUserReport:
		if !s.Owns(cmd.UID) {
			return schema.ResultSuccess, nil
		}
		p, ok := s.users[cmd.UID]
		if !ok {
			return schema.ResultUnknownUser, nil
		}
		rep := p.Report()
		cmd.Report = &rep
		return schema.ResultSuccess, nil
	case schema.CommandReset:
		s.Reset()
		return schema.ResultSuccess, nil
	default:
		return schema.ResultSuccess, nil
	}
}

// AddUser creates an empty profile.
func (s *Shard) AddUser(uid schema.UserID) schema.ResultCode {
	if _, ok := s.users[uid]; ok {
		return schema.ResultDuplicateUser
	}
	s.users[uid] = newUserProfile(uid)
	return schema.ResultSuccess
}

// AdjustBalance applies a deposit or withdrawal once per transaction id.
func (s *Shard) AdjustBalance(uid schema.UserID, currency schema.Currency, amount int64, txID int64) schema.ResultCode {
	p, ok := s.users[uid]
	if !ok {
		return schema.ResultUnknownUser
	}
	if _, done := p.Transactions[txID]; done {
		return schema.ResultSuccess
	}
	p.Transactions[txID] = struct{}{}
	p.Credit(currency, amount)
	return schema.ResultSuccess
}

// AddSymbols decodes a binary data payload and adds its specs. A spec
// is immutable once added: a batch that would change a known spec is
// refused as a whole with ResultSymbolConflict. Re-adding an identical
// spec is a no-op.
func (s *Shard) AddSymbols(data []byte) (schema.ResultCode, error) {
	specs, ok := codec.DecodeSymbolBatch(data)
	if !ok {
		return schema.ResultInternalError, errors.Wrap(exception.ErrInvalidCommand, "decode symbol batch")
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return schema.ResultInternalError, err
		}
		if known, ok := s.symbols[specs[i].ID]; ok && *known != specs[i] {
			return schema.ResultSymbolConflict, nil
		}
	}
	for i := range specs {
		spec := specs[i]
		if _, ok := s.symbols[spec.ID]; !ok {
			s.symbols[spec.ID] = &spec
		}
	}
	return schema.ResultSuccess, nil
}

// Hold reserves funds for a new order.
func (s *Shard) Hold(cmd *schema.Command, settled bool) (schema.ResultCode, bool) {
	p, ok := s.users[cmd.UID]
	if !ok {
		return schema.ResultUnknownUser, false
	}
	spec, ok := s.symbols[cmd.Symbol]
	if !ok {
		return schema.ResultUnknownSymbol, false
	}
	key := HoldKey{Symbol: cmd.Symbol, OrderID: cmd.OrderID}
	if _, exists := p.Holds[key]; exists {
		if !settled {
			return schema.ResultNew, true
		}
		return schema.ResultDuplicateOrderID, false
	}

	perLot, err := s.policy.Reserve(spec, cmd.Side, cmd.Price)
	if err != nil {
		return schema.ResultInsufficientFunds, false
	}
	base, overflowBase := mulChecked(perLot.Base, int64(cmd.Size))
	quote, overflowQuote := mulChecked(perLot.Quote, int64(cmd.Size))
	if overflowBase || overflowQuote {
		return schema.ResultInsufficientFunds, false
	}
	if (base > 0 && p.Free(spec.BaseCurrency) < base) || (quote > 0 && p.Free(spec.QuoteCurrency) < quote) {
		if !settled {
			return schema.ResultNew, true
		}
		return schema.ResultInsufficientFunds, false
	}

	p.Lock(spec.BaseCurrency, base)
	p.Lock(spec.QuoteCurrency, quote)
	p.Holds[key] = &Hold{
		Symbol:    cmd.Symbol,
		OrderID:   cmd.OrderID,
		Side:      cmd.Side,
		Price:     cmd.Price,
		Remaining: cmd.Size,
		PerLot:    perLot,
	}
	return schema.ResultSuccess, false
}

// Settle applies the matcher events of cmd to the profiles this shard
// owns.
func (s *Shard) Settle(cmd *schema.Command) error {
	if len(cmd.Events) == 0 {
		return nil
	}
	spec, ok := s.symbols[cmd.Symbol]
	if !ok {
		return errors.Wrapf(exception.ErrInternal, "settle events for unknown symbol %d", cmd.Symbol).With("seq", cmd.Seq)
	}
	takerOwned := cmd.Kind == schema.CommandPlaceOrder && s.Owns(cmd.UID)

	for i := range cmd.Events {
		ev := &cmd.Events[i]
		switch ev.Type {
		case schema.EventTrade:
			if takerOwned {
				fill := Fill{Side: cmd.Side, Price: ev.Price, Size: ev.Size, Taker: true}
				if err := s.fill(cmd.UID, spec, cmd.OrderID, fill, ev.TakerCompleted); err != nil {
					return errors.Wrap(err, "settle taker").With("seq", cmd.Seq)
				}
			}
			if s.Owns(ev.MakerUID) {
				fill := Fill{Side: cmd.Side.Opposite(), Price: ev.Price, Size: ev.Size}
				if err := s.fill(ev.MakerUID, spec, ev.MakerOrderID, fill, ev.MakerCompleted); err != nil {
					return errors.Wrap(err, "settle maker").With("seq", cmd.Seq)
				}
			}
		case schema.EventReduce, schema.EventReject:
			if s.Owns(ev.MakerUID) {
				if err := s.release(ev.MakerUID, spec, ev.MakerOrderID, ev.Size, ev.MakerCompleted); err != nil {
					return errors.Wrap(err, "release").With("seq", cmd.Seq)
				}
			}
		}
	}
	return nil
}

func (s *Shard) fill(uid schema.UserID, spec *schema.SymbolSpec, orderID schema.OrderID, fill Fill, completed bool) error {
	p, h, err := s.takeHold(uid, spec, orderID, fill.Size)
	if err != nil {
		return err
	}
	s.fees[spec.QuoteCurrency] += s.policy.Settle(p, spec, fill)
	return s.finishHold(p, h, completed)
}

func (s *Shard) release(uid schema.UserID, spec *schema.SymbolSpec, orderID schema.OrderID, size schema.Size, completed bool) error {
	p, h, err := s.takeHold(uid, spec, orderID, size)
	if err != nil {
		return err
	}
	return s.finishHold(p, h, completed)
}

// takeHold unlocks the reservation of size lots of an order.
func (s *Shard) takeHold(uid schema.UserID, spec *schema.SymbolSpec, orderID schema.OrderID, size schema.Size) (*UserProfile, *Hold, error) {
	p, ok := s.users[uid]
	if !ok {
		return nil, nil, errors.Wrapf(exception.ErrHoldNotFound, "user %d", uid)
	}
	h, ok := p.Holds[HoldKey{Symbol: spec.ID, OrderID: orderID}]
	if !ok {
		return nil, nil, errors.Wrapf(exception.ErrHoldNotFound, "user %d order %d", uid, orderID)
	}
	if size <= 0 || size > h.Remaining {
		return nil, nil, errors.Wrapf(exception.ErrHoldOverrelease, "user %d order %d size %d remaining %d", uid, orderID, size, h.Remaining)
	}
	p.Lock(spec.BaseCurrency, -h.PerLot.Base*int64(size))
	p.Lock(spec.QuoteCurrency, -h.PerLot.Quote*int64(size))
	h.Remaining -= size
	return p, h, nil
}

func (s *Shard) finishHold(p *UserProfile, h *Hold, completed bool) error {
	if completed != (h.Remaining == 0) {
		return errors.Wrapf(exception.ErrHoldOverrelease, "order %d completed=%t remaining %d", h.OrderID, completed, h.Remaining)
	}
	if completed {
		delete(p.Holds, HoldKey{Symbol: h.Symbol, OrderID: h.OrderID})
	}
	return nil
}

// Reset drops every profile, symbol and fee.
func (s *Shard) Reset() {
	s.users = make(map[schema.UserID]*UserProfile)
	s.symbols = make(map[schema.SymbolID]*schema.SymbolSpec)
	s.fees = make(map[schema.Currency]int64)
}

// User returns the profile of uid. Only safe on the shard goroutine or
// when the pipeline is stopped.
func (s *Shard) User(uid schema.UserID) (*UserProfile, bool) {
	p, ok := s.users[uid]
	return p, ok
}

// Symbol returns the spec of a symbol known to the shard.
func (s *Shard) Symbol(id schema.SymbolID) (*schema.SymbolSpec, bool) {
	spec, ok := s.symbols[id]
	return spec, ok
}

// Fees returns the fees collected by this shard per currency.
func (s *Shard) Fees() map[schema.Currency]int64 {
	out := make(map[schema.Currency]int64, len(s.fees))
	for c, v := range s.fees {
		out[c] = v
	}
	return out
}
