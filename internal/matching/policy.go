package matching

import "strings"

// SelfTradePolicy decides what happens when an incoming order meets a
// resting order of the same user.
type SelfTradePolicy uint8

const (
	// SelfTradeAllow matches the two orders like any other counterparty.
	SelfTradeAllow SelfTradePolicy = iota
	// SelfTradeCancelResting cancels the resting order and keeps matching.
	SelfTradeCancelResting
	// SelfTradeCancelTaker stops matching and cancels the incoming
	// remainder.
	SelfTradeCancelTaker
)

func (p SelfTradePolicy) String() string {
	switch p {
	case SelfTradeAllow:
		return "allow"
	case SelfTradeCancelResting:
		return "cancel-resting"
	case SelfTradeCancelTaker:
		return "cancel-taker"
	default:
		return "unknown"
	}
}

// ParseSelfTradePolicy maps a config name to a policy.
func ParseSelfTradePolicy(name string) (SelfTradePolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "allow":
		return SelfTradeAllow, true
	case "cancel-resting", "cancel_resting":
		return SelfTradeCancelResting, true
	case "cancel-taker", "cancel_taker":
		return SelfTradeCancelTaker, true
	default:
		return 0, false
	}
}
