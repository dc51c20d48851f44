package ops

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/internal/bus"
	"exchange/internal/core"
	"exchange/internal/matching"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Core     CoreConfig     `json:"core"`
	Store    StoreConfig    `json:"store"`
	Registry RegistryConfig `json:"registry"`
	Users    []UserConfig   `json:"users"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// CoreConfig is the pipeline section. Zero values take the core
// defaults.
type CoreConfig struct {
	RingSize         int    `json:"ringSize"`
	RiskShards       int    `json:"riskShards"`
	MatchingShards   int    `json:"matchingShards"`
	GroupLimit       int    `json:"groupLimit"`
	JournalBatchSize int    `json:"journalBatchSize"`
	LoadStateID      int64  `json:"loadStateId"`
	WaitStrategy     string `json:"waitStrategy"`
	SelfTrade        string `json:"selfTrade"`
}

// RegistryConfig defines currencies and symbols by name.
type RegistryConfig struct {
	Currencies []CurrencyConfig `json:"currencies"`
	Symbols    []SymbolConfig   `json:"symbols"`
}

// CurrencyConfig describes a currency entry.
type CurrencyConfig struct {
	Name  string       `json:"name"`
	ID    int32        `json:"id"`
	Scale schema.Scale `json:"scale"`
}

// SymbolConfig describes a symbol entry. Base and Quote are currency
// names.
type SymbolConfig struct {
	Name        string       `json:"name"`
	ID          int32        `json:"id"`
	Type        string       `json:"type"`
	Base        string       `json:"base"`
	Quote       string       `json:"quote"`
	BaseScaleK  int64        `json:"baseScaleK"`
	QuoteScaleK int64        `json:"quoteScaleK"`
	TakerFee    int64        `json:"takerFee"`
	MakerFee    int64        `json:"makerFee"`
	MarginBuy   int64        `json:"marginBuy"`
	MarginSell  int64        `json:"marginSell"`
	PriceScale  schema.Scale `json:"priceScale"`
}

// UserConfig describes a user created at bootstrap.
type UserConfig struct {
	UID      int64           `json:"uid"`
	Balances []BalanceConfig `json:"balances"`
}

// BalanceConfig is a deposit in the smallest unit of a currency.
type BalanceConfig struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// MetricsConfig captures the optional observability endpoints.
type MetricsConfig struct {
	Listen          string `json:"listen"`
	PyroscopeServer string `json:"pyroscopeServer"`
	AppName         string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Core     core.Config
	Store    StoreConfig
	Registry *schema.Registry
	Users    []UserSpec
	Metrics  MetricsConfig
}

// UserSpec is a resolved bootstrap user.
type UserSpec struct {
	UID      schema.UserID
	Deposits []Deposit
}

// Deposit is a resolved bootstrap balance.
type Deposit struct {
	Currency schema.Currency
	Amount   int64
}

// Load reads a JSON config file and resolves it. Relative store paths
// are resolved against the directory of the file.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	loaded, err := Parse(data)
	if err != nil {
		return Loaded{}, errors.Wrap(err, path)
	}
	loaded.Store = loaded.Store.resolvePaths(filepath.Dir(path))
	return loaded, nil
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "decode config: %v", err)
	}
	coreCfg, err := resolveCore(cfg.Core)
	if err != nil {
		return Loaded{}, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return Loaded{}, err
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	users, err := resolveUsers(cfg.Users, registry)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Metrics.AppName == "" {
		cfg.Metrics.AppName = "exchange"
	}
	return Loaded{
		Core:     coreCfg,
		Store:    cfg.Store,
		Registry: registry,
		Users:    users,
		Metrics:  cfg.Metrics,
	}, nil
}

func resolveCore(cfg CoreConfig) (core.Config, error) {
	out := core.DefaultConfig()
	if cfg.RingSize != 0 {
		out.RingSize = cfg.RingSize
	}
	if cfg.RiskShards != 0 {
		out.RiskShards = cfg.RiskShards
	}
	if cfg.MatchingShards != 0 {
		out.MatchingShards = cfg.MatchingShards
	}
	if cfg.GroupLimit != 0 {
		out.GroupLimit = cfg.GroupLimit
	}
	if cfg.JournalBatchSize != 0 {
		out.JournalBatchSize = cfg.JournalBatchSize
	}
	out.LoadStateID = cfg.LoadStateID

	wait, ok := bus.ParseWaitStrategy(cfg.WaitStrategy)
	if !ok {
		return core.Config{}, errors.Wrapf(exception.ErrInvalidConfig, "unknown wait strategy: %s", cfg.WaitStrategy)
	}
	out.WaitStrategy = wait
	stp, ok := matching.ParseSelfTradePolicy(cfg.SelfTrade)
	if !ok {
		return core.Config{}, errors.Wrapf(exception.ErrInvalidConfig, "unknown self trade policy: %s", cfg.SelfTrade)
	}
	out.SelfTrade = stp

	if err := out.Validate(); err != nil {
		return core.Config{}, err
	}
	return out, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, c := range cfg.Currencies {
		if c.Scale < 0 {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "currency %s: scale must be >= 0", c.Name)
		}
		if err := reg.AddCurrency(c.Name, schema.Currency(c.ID), c.Scale); err != nil {
			return nil, errors.Wrap(exception.ErrInvalidConfig, err.Error())
		}
	}
	for _, sym := range cfg.Symbols {
		spec, err := resolveSymbol(sym, reg)
		if err != nil {
			return nil, err
		}
		if err := reg.AddSymbol(sym.Name, spec, sym.PriceScale); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "symbol %s: %v", sym.Name, err)
		}
	}
	return reg, nil
}

func resolveSymbol(cfg SymbolConfig, reg *schema.Registry) (schema.SymbolSpec, error) {
	var typ schema.SymbolType
	switch strings.ToLower(cfg.Type) {
	case "", "exchange", "currency_exchange_pair":
		typ = schema.SymbolTypeCurrencyExchangePair
	case "futures", "futures_contract":
		typ = schema.SymbolTypeFuturesContract
	default:
		return schema.SymbolSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "symbol %s: unknown type %s", cfg.Name, cfg.Type)
	}
	base, ok := reg.CurrencyByName(cfg.Base)
	if !ok {
		return schema.SymbolSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "symbol %s: currency not found: %s", cfg.Name, cfg.Base)
	}
	quote, ok := reg.CurrencyByName(cfg.Quote)
	if !ok {
		return schema.SymbolSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "symbol %s: currency not found: %s", cfg.Name, cfg.Quote)
	}
	return schema.SymbolSpec{
		ID:            schema.SymbolID(cfg.ID),
		Type:          typ,
		BaseCurrency:  base.ID,
		QuoteCurrency: quote.ID,
		BaseScaleK:    cfg.BaseScaleK,
		QuoteScaleK:   cfg.QuoteScaleK,
		TakerFee:      cfg.TakerFee,
		MakerFee:      cfg.MakerFee,
		MarginBuy:     cfg.MarginBuy,
		MarginSell:    cfg.MarginSell,
	}, nil
}

func resolveUsers(cfg []UserConfig, reg *schema.Registry) ([]UserSpec, error) {
	seen := make(map[int64]struct{}, len(cfg))
	out := make([]UserSpec, 0, len(cfg))
	for _, u := range cfg {
		if u.UID <= 0 {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "user uid must be > 0: %d", u.UID)
		}
		if _, dup := seen[u.UID]; dup {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "duplicate user: %d", u.UID)
		}
		seen[u.UID] = struct{}{}
		spec := UserSpec{UID: schema.UserID(u.UID)}
		for _, b := range u.Balances {
			c, ok := reg.CurrencyByName(b.Currency)
			if !ok {
				return nil, errors.Wrapf(exception.ErrInvalidConfig, "user %d: currency not found: %s", u.UID, b.Currency)
			}
			spec.Deposits = append(spec.Deposits, Deposit{Currency: c.ID, Amount: b.Amount})
		}
		out = append(out, spec)
	}
	return out, nil
}
