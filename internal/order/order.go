// Package order implements the unified order record (§3) and its lifecycle
// state machine (§4.3), shared across every venue family the orchestrator
// drives orders through.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation is the kind of action an order performs; it determines
// downstream semantics (a trade settles on a venue order book, a supply/
// borrow/stake/withdraw/swap/transfer settles as an atomic on-chain bundle,
// a bet settles against a betting exchange).
type Operation string

const (
	OperationTrade    Operation = "trade"
	OperationSupply   Operation = "supply"
	OperationBorrow   Operation = "borrow"
	OperationStake    Operation = "stake"
	OperationWithdraw Operation = "withdraw"
	OperationSwap     Operation = "swap"
	OperationTransfer Operation = "transfer"
	OperationBet      Operation = "bet"
)

// IsAtomicGroupEligible reports whether this operation kind may participate
// in a DeFi atomic group (§4.8).
func (o Operation) IsAtomicGroupEligible() bool {
	switch o {
	case OperationSupply, OperationBorrow, OperationStake, OperationWithdraw, OperationSwap, OperationTransfer:
		return true
	default:
		return false
	}
}

// Side is the order side. Trades use BUY/SELL; other operations use their
// own vocabulary over the same field.
type Side string

const (
	SideBuy      Side = "BUY"
	SideSell     Side = "SELL"
	SideSupply   Side = "SUPPLY"
	SideBorrow   Side = "BORROW"
	SideStake    Side = "STAKE"
	SideWithdraw Side = "WITHDRAW"
	SideBack     Side = "BACK"
	SideLay      Side = "LAY"
)

// Type is the order type.
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeLimit  Type = "LIMIT"
)

// TimeInForce governs how long an order remains workable.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// ExecAlgorithm is the post-routing execution algorithm applied to an order.
type ExecAlgorithm string

const (
	ExecAlgorithmNormal  ExecAlgorithm = "NORMAL"
	ExecAlgorithmTWAP    ExecAlgorithm = "TWAP"
	ExecAlgorithmVWAP    ExecAlgorithm = "VWAP"
	ExecAlgorithmIceberg ExecAlgorithm = "ICEBERG"
)

// VenueKind distinguishes the two adapter dispatch paths (§4.2, §2).
type VenueKind string

const (
	VenueKindIntegrated VenueKind = "INTEGRATED"
	VenueKindExternalSDK VenueKind = "EXTERNAL_SDK"
)

// Status is a state in the order lifecycle state machine (§4.3).
type Status string

const (
	StatusPendingGroup    Status = "PENDING_GROUP" // held awaiting the rest of its atomic group (§4.8)
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// terminal is the set of states from which no further ordinary transition
// is possible; only late-fill corrections may still touch the record.
var terminal = map[Status]bool{
	StatusFilled:    true,
	StatusCancelled: true,
	StatusRejected:  true,
	StatusExpired:   true,
}

// IsTerminal reports whether s is a terminal state.
func (s Status) IsTerminal() bool { return terminal[s] }

// edges enumerates the allowed transitions of §4.3. PENDING->REJECTED
// bypasses the venue (risk denial); all others require an adapter event or
// an explicit orchestrator cancel.
var edges = map[Status]map[Status]bool{
	StatusPendingGroup: {
		// The whole group resolves together once the coordinator submits
		// the bundle: either every member is FILLED or every member is
		// REJECTED (§4.8), with no intermediate PENDING/SUBMITTED step.
		StatusFilled:   true,
		StatusRejected: true,
	},
	StatusPending: {
		StatusSubmitted: true,
		StatusRejected:  true,
	},
	StatusSubmitted: {
		StatusPartiallyFilled: true,
		StatusFilled:          true,
		StatusCancelled:       true,
		StatusRejected:        true,
		StatusExpired:         true,
	},
	StatusPartiallyFilled: {
		StatusPartiallyFilled: true, // self-loop on additional partial fills
		StatusFilled:          true,
		StatusCancelled:       true,
		StatusExpired:         true,
	},
}

// CanTransition reports whether from->to is a legal edge in the state
// machine. Terminal states never leave, per property 4 in §8.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	return edges[from][to]
}

// Fill is an append-only execution report against an order.
type Fill struct {
	FillID      string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	VenueFillID string
	Timestamp   time.Time
}

// Order is the unified order record, keyed by the caller-supplied
// OperationID idempotency key (§3).
type Order struct {
	OperationID   string
	Operation     Operation
	CanonicalID   string
	Venue         string
	VenueKind     VenueKind
	VenueOrderID  string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal // required when Type == TypeLimit
	Type          Type
	TimeInForce   TimeInForce
	ExecAlgorithm       ExecAlgorithm
	ExecAlgorithmParams map[string]interface{}
	Status        Status
	Fills         []Fill

	// ExpectedDeltas is the caller's predicted canonical_id -> signed
	// quantity map, stored for attribution only; it is never used to drive
	// position or risk decisions.
	ExpectedDeltas map[string]decimal.Decimal

	// Routing-split linkage: set only when this order is a child produced
	// by a smart-router split plan. Mutually exclusive with the atomic
	// group fields below (§9 open question: splits and groups are
	// orthogonal).
	ParentOperationID string

	// Atomic-group linkage (§4.8). AtomicGroupSize is the caller-declared
	// member count for AtomicGroupID; the coordinator holds members until
	// it has this many distinct SequenceInGroup values, then submits the
	// group as one unit. Every member of a group must carry the same size.
	AtomicGroupID   string
	SequenceInGroup int
	AtomicGroupSize int

	// Betting-market fields.
	Odds            decimal.Decimal
	Selection       string
	PotentialPayout decimal.Decimal

	RejectionReason string
	ErrorMessage    string

	StrategyID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FilledQuantity sums Fills[].Quantity.
func (o *Order) FilledQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range o.Fills {
		sum = sum.Add(f.Quantity)
	}
	return sum
}

// RemainingQuantity is Quantity - FilledQuantity, floored at zero.
func (o *Order) RemainingQuantity() decimal.Decimal {
	rem := o.Quantity.Sub(o.FilledQuantity())
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// AvgFillPrice is the fee-exclusive volume-weighted average fill price.
func (o *Order) AvgFillPrice() decimal.Decimal {
	if len(o.Fills) == 0 {
		return decimal.Zero
	}
	notional := decimal.Zero
	qty := decimal.Zero
	for _, f := range o.Fills {
		notional = notional.Add(f.Price.Mul(f.Quantity))
		qty = qty.Add(f.Quantity)
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return notional.Div(qty)
}
