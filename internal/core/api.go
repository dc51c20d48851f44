package core

import (
	"exchange/internal/codec"
	"exchange/internal/schema"
)

// Order is the input of PlaceOrder. A zero Type places a GTC order.
type Order struct {
	UID     schema.UserID
	Symbol  schema.SymbolID
	OrderID schema.OrderID
	Side    schema.Side
	Type    schema.OrderType
	Price   schema.Price
	Size    schema.Size
}

func (e *Exchange) AddUser(uid schema.UserID) (int64, error) {
	return e.Submit(&schema.Command{Kind: schema.CommandAddUser, UID: uid})
}

// AdjustBalance deposits (amount > 0) or withdraws (amount < 0). A
// repeated transaction id of the same user is applied once.
func (e *Exchange) AdjustBalance(uid schema.UserID, currency schema.Currency, amount, txID int64) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:          schema.CommandBalanceAdjustment,
		UID:           uid,
		Currency:      currency,
		Amount:        amount,
		TransactionID: txID,
	})
}

// AddSymbols adds symbol specs on every shard. A batch that would change
// a known spec completes with ResultSymbolConflict and changes nothing.
func (e *Exchange) AddSymbols(transferID int32, specs ...schema.SymbolSpec) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:       schema.CommandBinaryData,
		TransferID: transferID,
		Data:       codec.EncodeSymbolBatch(nil, specs),
	})
}

func (e *Exchange) PlaceOrder(o Order) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:      schema.CommandPlaceOrder,
		UID:       o.UID,
		Symbol:    o.Symbol,
		OrderID:   o.OrderID,
		Side:      o.Side,
		OrderType: o.Type,
		Price:     o.Price,
		Size:      o.Size,
	})
}

func (e *Exchange) CancelOrder(uid schema.UserID, symbol schema.SymbolID, orderID schema.OrderID) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:    schema.CommandCancelOrder,
		UID:     uid,
		Symbol:  symbol,
		OrderID: orderID,
	})
}

// ReduceOrder shrinks a resting order by size lots. Reducing by the
// remaining size or more cancels it.
func (e *Exchange) ReduceOrder(uid schema.UserID, symbol schema.SymbolID, orderID schema.OrderID, size schema.Size) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:    schema.CommandReduceOrder,
		UID:     uid,
		Symbol:  symbol,
		OrderID: orderID,
		Size:    size,
	})
}

// OrderBook requests an L2 snapshot of symbol. depth <= 0 returns every
// level.
func (e *Exchange) OrderBook(symbol schema.SymbolID, depth int) (int64, error) {
	return e.Submit(&schema.Command{
		Kind:   schema.CommandOrderBookRequest,
		Symbol: symbol,
		Size:   schema.Size(depth),
	})
}

func (e *Exchange) UserReport(uid schema.UserID) (int64, error) {
	return e.Submit(&schema.Command{Kind: schema.CommandUserReport, UID: uid})
}

// Reset drops every user, symbol and order.
func (e *Exchange) Reset() (int64, error) {
	return e.Submit(&schema.Command{Kind: schema.CommandReset})
}

func (e *Exchange) Nop() (int64, error) {
	return e.Submit(&schema.Command{Kind: schema.CommandNop})
}

// PersistState snapshots every shard under stateID. The matching and risk
// persist commands are sequenced back to back; the returned sequence is
// the one of the matching command, the risk command follows it.
func (e *Exchange) PersistState(stateID int64) (int64, error) {
	return e.SubmitBatch([]schema.Command{
		{Kind: schema.CommandPersistStateMatching, StateID: stateID},
		{Kind: schema.CommandPersistStateRisk, StateID: stateID},
	})
}
