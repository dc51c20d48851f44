package schema

import "fmt"

// Scale is the number of decimal places used to display a scaled integer.
// Example: Scale=2 means the integer value 10000 reads as 100.00.
type Scale int32

// CurrencyInfo describes a currency known by name.
type CurrencyInfo struct {
	ID    Currency
	Name  string
	Scale Scale
}

// Symbol is a named symbol spec with its display scale.
type Symbol struct {
	Name       string
	Spec       SymbolSpec
	PriceScale Scale
}

// Registry stores currency and symbol names for configuration and
// display. The core itself only works with numeric ids.
type Registry struct {
	currencies     []CurrencyInfo
	symbols        []Symbol
	currencyByName map[string]int
	symbolByName   map[string]int
	symbolByID     map[SymbolID]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		currencyByName: make(map[string]int),
		symbolByName:   make(map[string]int),
		symbolByID:     make(map[SymbolID]int),
	}
}

// AddCurrency registers a currency under a name.
func (r *Registry) AddCurrency(name string, id Currency, scale Scale) error {
	if name == "" {
		return fmt.Errorf("currency name is empty")
	}
	if _, ok := r.currencyByName[name]; ok {
		return fmt.Errorf("currency already exists: %s", name)
	}
	r.currencyByName[name] = len(r.currencies)
	r.currencies = append(r.currencies, CurrencyInfo{ID: id, Name: name, Scale: scale})
	return nil
}

// AddSymbol registers a symbol spec under a name.
func (r *Registry) AddSymbol(name string, spec SymbolSpec, priceScale Scale) error {
	if name == "" {
		return fmt.Errorf("symbol name is empty")
	}
	if _, ok := r.symbolByName[name]; ok {
		return fmt.Errorf("symbol already exists: %s", name)
	}
	if _, ok := r.symbolByID[spec.ID]; ok {
		return fmt.Errorf("symbol id already exists: %d", spec.ID)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	idx := len(r.symbols)
	r.symbols = append(r.symbols, Symbol{Name: name, Spec: spec, PriceScale: priceScale})
	r.symbolByName[name] = idx
	r.symbolByID[spec.ID] = idx
	return nil
}

// CurrencyByName returns the currency registered under name.
func (r *Registry) CurrencyByName(name string) (CurrencyInfo, bool) {
	idx, ok := r.currencyByName[name]
	if !ok {
		return CurrencyInfo{}, false
	}
	return r.currencies[idx], true
}

// SymbolByName returns the symbol registered under name.
func (r *Registry) SymbolByName(name string) (Symbol, bool) {
	idx, ok := r.symbolByName[name]
	if !ok {
		return Symbol{}, false
	}
	return r.symbols[idx], true
}

// Symbol returns the symbol by id.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	idx, ok := r.symbolByID[id]
	if !ok {
		return Symbol{}, false
	}
	return r.symbols[idx], true
}

// Specs returns every registered spec in registration order.
func (r *Registry) Specs() []SymbolSpec {
	out := make([]SymbolSpec, 0, len(r.symbols))
	for _, sym := range r.symbols {
		out = append(out, sym.Spec)
	}
	return out
}

// Currencies returns every registered currency in registration order.
func (r *Registry) Currencies() []CurrencyInfo {
	return append([]CurrencyInfo(nil), r.currencies...)
}
