package schema

// ResultCode is the closed set of outcomes reported for a command.
type ResultCode uint8

const (
	// ResultNew marks a command that no stage has decided yet.
	ResultNew ResultCode = iota
	ResultSuccess
	// ResultAccepted is reported by multi-step commands still in flight.
	ResultAccepted
	ResultDuplicateUser
	ResultUnknownUser
	ResultInsufficientFunds
	ResultOrderNotFound
	ResultUnknownSymbol
	ResultDuplicateOrderID
	ResultInternalError
	// ResultSymbolConflict refuses a binary data batch that would change
	// the spec of a known symbol.
	ResultSymbolConflict

	resultCodeCount
)

// ResultCodeCount is the number of defined result codes.
const ResultCodeCount = int(resultCodeCount)

// IsSuccess reports whether the command took effect.
func (r ResultCode) IsSuccess() bool {
	return r == ResultSuccess || r == ResultAccepted
}

func (r ResultCode) String() string {
	switch r {
	case ResultNew:
		return "NEW"
	case ResultSuccess:
		return "SUCCESS"
	case ResultAccepted:
		return "ACCEPTED"
	case ResultDuplicateUser:
		return "DUPLICATE_USER"
	case ResultUnknownUser:
		return "UNKNOWN_USER"
	case ResultInsufficientFunds:
		return "INSUFFICIENT_FUNDS"
	case ResultOrderNotFound:
		return "ORDER_NOT_FOUND"
	case ResultUnknownSymbol:
		return "UNKNOWN_SYMBOL"
	case ResultDuplicateOrderID:
		return "DUPLICATE_ORDER_ID"
	case ResultInternalError:
		return "INTERNAL_ERROR"
	case ResultSymbolConflict:
		return "SYMBOL_CONFLICT"
	default:
		return "UNKNOWN"
	}
}
