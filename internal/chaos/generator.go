package chaos

import (
	"math/rand"

	"github.com/yanun0323/errors"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

const (
	CurrencyUSD schema.Currency = 840
	CurrencyEUR schema.Currency = 978
	CurrencyXBT schema.Currency = 3762

	SymbolXBTUSD schema.SymbolID = 1
	SymbolEURUSD schema.SymbolID = 2
)

// DefaultSymbols returns one exchange pair and one futures contract
// quoted in USD cents.
func DefaultSymbols() []schema.SymbolSpec {
	return []schema.SymbolSpec{
		{
			ID:            SymbolXBTUSD,
			Type:          schema.SymbolTypeCurrencyExchangePair,
			BaseCurrency:  CurrencyXBT,
			QuoteCurrency: CurrencyUSD,
			BaseScaleK:    100,
			QuoteScaleK:   1,
			TakerFee:      2,
			MakerFee:      1,
		},
		{
			ID:            SymbolEURUSD,
			Type:          schema.SymbolTypeFuturesContract,
			BaseCurrency:  CurrencyEUR,
			QuoteCurrency: CurrencyUSD,
			BaseScaleK:    1,
			QuoteScaleK:   1,
			TakerFee:      1,
			MakerFee:      0,
			MarginBuy:     500,
			MarginSell:    500,
		},
	}
}

// GeneratorConfig controls the random trading workload.
type GeneratorConfig struct {
	Seed    int64
	Users   int
	Symbols []schema.SymbolSpec
	// Deposit is credited to every user in every currency of Symbols.
	Deposit  int64
	MidPrice schema.Price
	// Spread is the number of price steps orders are spread around
	// MidPrice.
	Spread  int
	MaxSize schema.Size
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Users == 0 {
		c.Users = 16
	}
	if len(c.Symbols) == 0 {
		c.Symbols = DefaultSymbols()
	}
	if c.Deposit == 0 {
		c.Deposit = 10_000_000
	}
	if c.MidPrice == 0 {
		c.MidPrice = 10_000
	}
	if c.Spread == 0 {
		c.Spread = 20
	}
	if c.MaxSize == 0 {
		c.MaxSize = 10
	}
	return c
}

// Validate checks if the configuration is usable.
func (c GeneratorConfig) Validate() error {
	if c.Users <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: users must be > 0")
	}
	if int64(c.MidPrice) <= int64(c.Spread) {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: midPrice must be above spread")
	}
	if c.MaxSize <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: maxSize must be > 0")
	}
	for _, spec := range c.Symbols {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type openOrder struct {
	uid    schema.UserID
	symbol schema.SymbolID
	id     schema.OrderID
}

// Generator produces a deterministic random command stream for a seed.
// Orders it placed are tracked so cancels and reduces mostly hit live
// orders; commands against filled orders are part of the workload.
type Generator struct {
	cfg     GeneratorConfig
	rng     *rand.Rand
	orderID schema.OrderID
	txID    int64
	open    []openOrder
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Setup returns the commands that create the symbols and funded users.
func (g *Generator) Setup() []schema.Command {
	out := []schema.Command{{
		Kind:       schema.CommandBinaryData,
		TransferID: 1,
		Data:       codec.EncodeSymbolBatch(nil, g.cfg.Symbols),
	}}
	currencies := g.currencies()
	for u := 1; u <= g.cfg.Users; u++ {
		uid := schema.UserID(u)
		out = append(out, schema.Command{Kind: schema.CommandAddUser, UID: uid})
		for _, c := range currencies {
			out = append(out, g.deposit(uid, c, g.cfg.Deposit))
		}
	}
	return out
}

// Next returns the next random command.
func (g *Generator) Next() schema.Command {
	switch n := g.rng.Intn(100); {
	case n < 60:
		return g.place()
	case n < 75:
		if cmd, ok := g.cancel(); ok {
			return cmd
		}
		return g.place()
	case n < 83:
		if cmd, ok := g.reduce(); ok {
			return cmd
		}
		return g.place()
	case n < 88:
		c := g.currencies()
		return g.deposit(g.user(), c[g.rng.Intn(len(c))], int64(g.rng.Intn(10_000)+1))
	case n < 93:
		return schema.Command{
			Kind:   schema.CommandOrderBookRequest,
			Symbol: g.symbol().ID,
			Size:   schema.Size(g.rng.Intn(5)),
		}
	case n < 97:
		return schema.Command{Kind: schema.CommandUserReport, UID: g.user()}
	default:
		return schema.Command{Kind: schema.CommandNop}
	}
}

func (g *Generator) place() schema.Command {
	spec := g.symbol()
	side := schema.SideBid
	if g.rng.Intn(2) == 1 {
		side = schema.SideAsk
	}
	// Bids lean below mid and asks above so the book rests and crosses
	// at a realistic rate.
	offset := schema.Price(g.rng.Intn(2*g.cfg.Spread+1) - g.cfg.Spread)
	price := g.cfg.MidPrice + offset
	orderType := schema.OrderTypeGTC
	switch n := g.rng.Intn(10); {
	case n == 0:
		orderType = schema.OrderTypeIOC
	case n == 1:
		orderType = schema.OrderTypeFOK
	}

	g.orderID++
	cmd := schema.Command{
		Kind:      schema.CommandPlaceOrder,
		UID:       g.user(),
		Symbol:    spec.ID,
		OrderID:   g.orderID,
		Side:      side,
		OrderType: orderType,
		Price:     price,
		Size:      schema.Size(g.rng.Int63n(int64(g.cfg.MaxSize)) + 1),
	}
	if orderType == schema.OrderTypeGTC {
		g.open = append(g.open, openOrder{uid: cmd.UID, symbol: cmd.Symbol, id: cmd.OrderID})
		if len(g.open) > 4096 {
			g.open = g.open[1:]
		}
	}
	return cmd
}

func (g *Generator) cancel() (schema.Command, bool) {
	if len(g.open) == 0 {
		return schema.Command{}, false
	}
	idx := g.rng.Intn(len(g.open))
	o := g.open[idx]
	g.open = append(g.open[:idx], g.open[idx+1:]...)
	return schema.Command{
		Kind:    schema.CommandCancelOrder,
		UID:     o.uid,
		Symbol:  o.symbol,
		OrderID: o.id,
	}, true
}

func (g *Generator) reduce() (schema.Command, bool) {
	if len(g.open) == 0 {
		return schema.Command{}, false
	}
	o := g.open[g.rng.Intn(len(g.open))]
	return schema.Command{
		Kind:    schema.CommandReduceOrder,
		UID:     o.uid,
		Symbol:  o.symbol,
		OrderID: o.id,
		Size:    schema.Size(g.rng.Intn(3) + 1),
	}, true
}

func (g *Generator) deposit(uid schema.UserID, c schema.Currency, amount int64) schema.Command {
	g.txID++
	return schema.Command{
		Kind:          schema.CommandBalanceAdjustment,
		UID:           uid,
		Currency:      c,
		Amount:        amount,
		TransactionID: g.txID,
	}
}

func (g *Generator) user() schema.UserID {
	return schema.UserID(g.rng.Intn(g.cfg.Users) + 1)
}

func (g *Generator) symbol() schema.SymbolSpec {
	return g.cfg.Symbols[g.rng.Intn(len(g.cfg.Symbols))]
}

// currencies returns every currency of the configured symbols in first
// seen order.
func (g *Generator) currencies() []schema.Currency {
	seen := make(map[schema.Currency]struct{})
	var out []schema.Currency
	for _, spec := range g.cfg.Symbols {
		for _, c := range []schema.Currency{spec.BaseCurrency, spec.QuoteCurrency} {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
