package models

const (
	OrderStateNew                = "NEW"
	OrderStatePendingSubmit      = "PENDING_SUBMIT"
	OrderStateSubmitted          = "SUBMITTED"
	OrderStateRouted             = "ROUTED"
	OrderStatePendingCancel      = "PENDING_CANCEL"
	OrderStatePendingReplace     = "PENDING_REPLACE"
	OrderStatePartiallyFilled    = "PARTIALLY_FILLED"
	OrderStateFilled             = "FILLED"
	OrderStateCancelled          = "CANCELLED"
	OrderStateRejected           = "REJECTED"
	OrderStateExpired            = "EXPIRED"
	OrderStateReplaced           = "REPLACED"
	OrderStateInsufficientFunds  = "INSUFFICIENT_FUNDS"
	OrderStateRiskRejected       = "RISK_REJECTED"
	OrderStateComplianceRejected = "COMPLIANCE_REJECTED"
)

const (
	SideBuy        = "BUY"
	SideSell       = "SELL"
	SideBuyToCover = "BUY_TO_COVER"
	SideSellShort  = "SELL_SHORT"
)

const (
	OrderTypeMarket            = "MARKET"
	OrderTypeLimit             = "LIMIT"
	OrderTypeStop              = "STOP"
	OrderTypeStopLimit         = "STOP_LIMIT"
	OrderTypeTrailingStop      = "TRAILING_STOP"
	OrderTypeTrailingStopLimit = "TRAILING_STOP_LIMIT"
	OrderTypePegged            = "PEGGED"
	OrderTypeAuction           = "AUCTION"
	OrderTypeVolatility        = "VOLATILITY"
	OrderTypeAdaptive          = "ADAPTIVE"
)

const (
	TimeInForceDay = "DAY"
	TimeInForceGTC = "GTC"
	TimeInForceIOC = "IOC"
	TimeInForceFOK = "FOK"
	TimeInForceGTD = "GTD"
	TimeInForceOPG = "OPG"
	TimeInForceCLS = "CLS"
	TimeInForceMOC = "MOC"
	TimeInForceLOC = "LOC"
)

// activeOrderStates are the states eligible for modify and cancel.
var activeOrderStates = map[string]struct{}{
	OrderStateNew:            {},
	OrderStatePendingSubmit:  {},
	OrderStateSubmitted:      {},
	OrderStatePendingCancel:  {},
	OrderStatePendingReplace: {},
}

var terminalOrderStates = map[string]struct{}{
	OrderStateFilled:    {},
	OrderStateCancelled: {},
	OrderStateRejected:  {},
	OrderStateExpired:   {},
	OrderStateReplaced:  {},
}

// fillableOrderStates are the states in which an execution may be
// recorded against the order.
var fillableOrderStates = map[string]struct{}{
	OrderStateNew:             {},
	OrderStatePendingSubmit:   {},
	OrderStateSubmitted:       {},
	OrderStateRouted:          {},
	OrderStatePartiallyFilled: {},
	OrderStatePendingCancel:   {},
	OrderStatePendingReplace:  {},
}

// orderTransitions is the one-directional state machine. Terminal states
// carry no outgoing edges. The three rejection variants are not terminal:
// they may be resubmitted after funding or an override, or closed out,
// but only via state events, never via the cancel operation.
var orderTransitions = map[string][]string{
	OrderStateNew: {
		OrderStatePendingSubmit, OrderStateSubmitted, OrderStateRouted,
		OrderStatePartiallyFilled, OrderStateFilled,
		OrderStatePendingCancel, OrderStatePendingReplace,
		OrderStateCancelled, OrderStateRejected, OrderStateExpired,
		OrderStateInsufficientFunds, OrderStateRiskRejected, OrderStateComplianceRejected,
	},
	OrderStatePendingSubmit: {
		OrderStateSubmitted, OrderStateRouted,
		OrderStatePartiallyFilled, OrderStateFilled,
		OrderStatePendingCancel,
		OrderStateCancelled, OrderStateRejected, OrderStateExpired,
		OrderStateInsufficientFunds, OrderStateRiskRejected, OrderStateComplianceRejected,
	},
	OrderStateSubmitted: {
		OrderStateRouted,
		OrderStatePartiallyFilled, OrderStateFilled,
		OrderStatePendingCancel, OrderStatePendingReplace,
		OrderStateCancelled, OrderStateRejected, OrderStateExpired,
		OrderStateInsufficientFunds,
	},
	OrderStateRouted: {
		OrderStatePartiallyFilled, OrderStateFilled,
		OrderStatePendingCancel, OrderStatePendingReplace,
		OrderStateCancelled, OrderStateRejected, OrderStateExpired,
	},
	OrderStatePartiallyFilled: {
		OrderStateFilled,
		OrderStatePendingCancel,
		OrderStateCancelled, OrderStateExpired,
	},
	OrderStatePendingCancel: {
		OrderStateCancelled,
		OrderStatePartiallyFilled, OrderStateFilled,
	},
	OrderStatePendingReplace: {
		OrderStateReplaced, OrderStateSubmitted,
		OrderStatePartiallyFilled, OrderStateFilled,
		OrderStateCancelled,
	},
	OrderStateInsufficientFunds: {
		OrderStatePendingSubmit, OrderStateSubmitted, OrderStateCancelled,
	},
	OrderStateRiskRejected: {
		OrderStatePendingSubmit, OrderStateSubmitted, OrderStateCancelled,
	},
	OrderStateComplianceRejected: {
		OrderStatePendingSubmit, OrderStateSubmitted, OrderStateCancelled,
	},
}

func OrderStateActive(state string) bool {
	_, ok := activeOrderStates[state]
	return ok
}

func OrderStateTerminal(state string) bool {
	_, ok := terminalOrderStates[state]
	return ok
}

func OrderStateFillable(state string) bool {
	_, ok := fillableOrderStates[state]
	return ok
}

// CanTransition reports whether the state machine permits from -> to.
// Staying in place is not a transition.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func OrderStates() []string {
	return []string{
		OrderStateNew, OrderStatePendingSubmit, OrderStateSubmitted,
		OrderStateRouted, OrderStatePendingCancel, OrderStatePendingReplace,
		OrderStatePartiallyFilled, OrderStateFilled, OrderStateCancelled,
		OrderStateRejected, OrderStateExpired, OrderStateReplaced,
		OrderStateInsufficientFunds, OrderStateRiskRejected, OrderStateComplianceRejected,
	}
}
