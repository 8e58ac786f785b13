package channel

import "fmt"

// State is a channel's lifecycle state (§4.4).
type State int

const (
	StateOpening State = iota
	StateAwaitingLockin
	StateNormal
	StateShuttingDown
	StateClosingSigExchange
	StateClosingComplete
	StateAwaitingUnilateral
	StateFundingSpendSeen
	StateOnchain
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENINGD"
	case StateAwaitingLockin:
		return "CHANNELD_AWAITING_LOCKIN"
	case StateNormal:
		return "CHANNELD_NORMAL"
	case StateShuttingDown:
		return "CHANNELD_SHUTTING_DOWN"
	case StateClosingSigExchange:
		return "CLOSINGD_SIGEXCHANGE"
	case StateClosingComplete:
		return "CLOSINGD_COMPLETE"
	case StateAwaitingUnilateral:
		return "AWAITING_UNILATERAL"
	case StateFundingSpendSeen:
		return "FUNDING_SPEND_SEEN"
	case StateOnchain:
		return "ONCHAIN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Terminal is the set of states in which a channel can no longer transition
// anywhere: reconnecting while in one of these is an impossible invariant
// (§4.4: "States {ONCHAIN, FUNDING_SPEND_SEEN, CLOSING_COMPLETE} on
// reconnect are impossible invariants - assert.").
func (s State) Terminal() bool {
	switch s {
	case StateOnchain, StateFundingSpendSeen, StateClosingComplete:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates every (from, to) pair this core is allowed to
// drive a channel through. Anything not listed here is a programming
// error: call SetState and check the returned error rather than mutating
// State directly.
var legalTransitions = map[State]map[State]bool{
	StateOpening: {
		StateAwaitingLockin: true,
		// opening failure destroys the channel outright; no transition.
	},
	StateAwaitingLockin: {
		StateNormal:             true,
		StateShuttingDown:       true,
		StateAwaitingUnilateral: true,
	},
	StateNormal: {
		StateShuttingDown:       true,
		StateAwaitingUnilateral: true,
	},
	StateShuttingDown: {
		StateClosingSigExchange: true,
		StateAwaitingUnilateral: true,
	},
	StateClosingSigExchange: {
		StateClosingComplete:    true,
		StateAwaitingUnilateral: true,
	},
	StateAwaitingUnilateral: {
		StateFundingSpendSeen: true,
	},
	StateFundingSpendSeen: {
		StateOnchain: true,
	},
}

// CanTransition reports whether from -> to is a legal transition per the
// table in §4.4.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	return legalTransitions[from][to]
}

// Active reports whether a channel in this state still participates in
// normal peer communication (drives getinfo's active/inactive/pending
// split alongside StateAwaitingLockin, which getinfo counts separately as
// "pending").
func (s State) Active() bool {
	switch s {
	case StateNormal, StateShuttingDown, StateClosingSigExchange:
		return true
	default:
		return false
	}
}
