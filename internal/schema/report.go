package schema

// BalanceReport is the state of one currency in a user profile.
type BalanceReport struct {
	Currency Currency `json:"currency"`
	Total    int64    `json:"total"`
	Held     int64    `json:"held"`
}

// Free returns the amount available for new holds.
func (b BalanceReport) Free() int64 {
	return b.Total - b.Held
}

// PositionReport is an open futures position.
type PositionReport struct {
	Symbol       SymbolID `json:"symbol"`
	Direction    Side     `json:"direction"`
	OpenVolume   Size     `json:"openVolume"`
	OpenPriceSum int64    `json:"openPriceSum"`
	Margin       int64    `json:"margin"`
}

// UserReport is a read-only view of one user profile.
type UserReport struct {
	UID       UserID           `json:"uid"`
	Balances  []BalanceReport  `json:"balances"`
	Positions []PositionReport `json:"positions"`
	Orders    int              `json:"orders"`
}

func (r UserReport) Copy() UserReport {
	out := r
	out.Balances = append([]BalanceReport(nil), r.Balances...)
	out.Positions = append([]PositionReport(nil), r.Positions...)
	return out
}

// Balance returns the report for one currency. Missing currencies read
// as zero.
func (r UserReport) Balance(c Currency) BalanceReport {
	for _, b := range r.Balances {
		if b.Currency == c {
			return b
		}
	}
	return BalanceReport{Currency: c}
}
