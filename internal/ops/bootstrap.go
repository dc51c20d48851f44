package ops

import (
	"exchange/internal/codec"
	"exchange/internal/schema"
)

// bootstrapTxBase keeps bootstrap transaction ids apart from the ids
// clients use.
const bootstrapTxBase int64 = 1 << 40

// Bootstrap returns the commands that load the configured symbols and
// users into an empty exchange.
func (l Loaded) Bootstrap() []schema.Command {
	var out []schema.Command
	if specs := l.Registry.Specs(); len(specs) > 0 {
		out = append(out, schema.Command{
			Kind:       schema.CommandBinaryData,
			TransferID: 1,
			Data:       codec.EncodeSymbolBatch(nil, specs),
		})
	}
	tx := bootstrapTxBase
	for _, u := range l.Users {
		out = append(out, schema.Command{Kind: schema.CommandAddUser, UID: u.UID})
		for _, d := range u.Deposits {
			tx++
			out = append(out, schema.Command{
				Kind:          schema.CommandBalanceAdjustment,
				UID:           u.UID,
				Currency:      d.Currency,
				Amount:        d.Amount,
				TransactionID: tx,
			})
		}
	}
	return out
}
