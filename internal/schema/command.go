package schema

// CommandKind is the closed set of commands accepted by the core.
type CommandKind uint16

const (
	CommandNop CommandKind = iota
	CommandAddUser
	CommandBalanceAdjustment
	CommandBinaryData
	CommandPlaceOrder
	CommandCancelOrder
	CommandReduceOrder
	CommandOrderBookRequest
	CommandReset
	CommandPersistStateMatching
	CommandPersistStateRisk
	CommandUserReport

	commandKindCount
)

// CommandKindCount is the number of defined command kinds.
const CommandKindCount = int(commandKindCount)

func (k CommandKind) Valid() bool {
	return k < commandKindCount
}

// IsPersist reports whether the command is a snapshot request.
func (k CommandKind) IsPersist() bool {
	return k == CommandPersistStateMatching || k == CommandPersistStateRisk
}

func (k CommandKind) String() string {
	switch k {
	case CommandNop:
		return "NOP"
	case CommandAddUser:
		return "ADD_USER"
	case CommandBalanceAdjustment:
		return "BALANCE_ADJUSTMENT"
	case CommandBinaryData:
		return "BINARY_DATA"
	case CommandPlaceOrder:
		return "PLACE_ORDER"
	case CommandCancelOrder:
		return "CANCEL_ORDER"
	case CommandReduceOrder:
		return "REDUCE_ORDER"
	case CommandOrderBookRequest:
		return "ORDER_BOOK_REQUEST"
	case CommandReset:
		return "RESET"
	case CommandPersistStateMatching:
		return "PERSIST_STATE_MATCHING"
	case CommandPersistStateRisk:
		return "PERSIST_STATE_RISK"
	case CommandUserReport:
		return "USER_REPORT"
	default:
		return "UNKNOWN"
	}
}

// Command is the envelope carried through every pipeline stage.
//
// Input fields are written once by the sequencer. Result fields are
// filled in by the stages; each field has exactly one writing stage.
// The envelope lives in a ring slot that is reused after delivery, so a
// consumer that keeps it past the callback must call Copy.
type Command struct {
	Seq       int64
	Kind      CommandKind
	Timestamp int64

	UID       UserID
	Symbol    SymbolID
	OrderID   OrderID
	Price     Price
	Size      Size
	Side      Side
	OrderType OrderType

	// balance adjustment
	Currency      Currency
	Amount        int64
	TransactionID int64

	// persist state
	StateID int64

	// binary data
	TransferID int32
	Data       []byte

	Result     ResultCode
	Events     []MatcherEvent
	MarketData *L2MarketData
	Report     *UserReport

	// Replay marks a command recovered from the journal.
	Replay bool
}

// ResetInput clears the command for reuse in a ring slot.
func (c *Command) ResetInput() {
	events := c.Events[:0]
	*c = Command{}
	c.Events = events
}

// SetInput copies the input fields of src into c and clears results.
func (c *Command) SetInput(src *Command) {
	c.ResetInput()
	c.Seq = src.Seq
	c.Kind = src.Kind
	c.Timestamp = src.Timestamp
	c.UID = src.UID
	c.Symbol = src.Symbol
	c.OrderID = src.OrderID
	c.Price = src.Price
	c.Size = src.Size
	c.Side = src.Side
	c.OrderType = src.OrderType
	c.Currency = src.Currency
	c.Amount = src.Amount
	c.TransactionID = src.TransactionID
	c.StateID = src.StateID
	c.TransferID = src.TransferID
	c.Data = src.Data
	c.Replay = src.Replay
}

// Copy returns a deep copy detached from the ring slot.
func (c *Command) Copy() Command {
	out := *c
	if len(c.Data) > 0 {
		out.Data = append([]byte(nil), c.Data...)
	}
	if len(c.Events) > 0 {
		out.Events = append([]MatcherEvent(nil), c.Events...)
	} else {
		out.Events = nil
	}
	if c.MarketData != nil {
		md := c.MarketData.Copy()
		out.MarketData = &md
	}
	if c.Report != nil {
		rep := c.Report.Copy()
		out.Report = &rep
	}
	return out
}

// MatcherEventType describes what the matching shard did to an order.
type MatcherEventType uint8

const (
	// EventTrade is a fill between the incoming order and a resting order.
	EventTrade MatcherEventType = iota + 1
	// EventReduce releases size of an order without a fill: cancel, reduce,
	// unfilled IOC remainder or a self-trade cancellation.
	EventReduce
	// EventReject returns the full incoming order without touching the book.
	EventReject
)

func (t MatcherEventType) String() string {
	switch t {
	case EventTrade:
		return "TRADE"
	case EventReduce:
		return "REDUCE"
	case EventReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// MatcherEvent is produced by a matching shard and consumed by the risk
// release stage.
//
// For trades the maker fields describe the resting order. For reduce
// and reject events they describe the order whose size is released,
// which can be the incoming order itself.
type MatcherEvent struct {
	Type           MatcherEventType
	MakerOrderID   OrderID
	MakerUID       UserID
	Price          Price
	Size           Size
	MakerCompleted bool
	TakerCompleted bool
}
