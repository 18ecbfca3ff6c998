package risk

// Reason is the denial reason carried on a DENY decision (§4.4).
type Reason string

const (
	ReasonVelocity       Reason = "VELOCITY"
	ReasonPositionCap    Reason = "POSITION_CAP"
	ReasonExposureCap    Reason = "EXPOSURE_CAP"
	ReasonPriceTolerance Reason = "PRICE_TOLERANCE"
	ReasonOrderShape     Reason = "ORDER_SHAPE"
	ReasonNotPermitted   Reason = "NOT_PERMITTED"
	ReasonRiskTimeout    Reason = "RISK_TIMEOUT"
)

// Decision is the result of a Check call: either ALLOW or DENY with a
// single Reason (the first check to fail wins; checks run in the order
// listed in §4.4).
type Decision struct {
	Allow  bool
	Reason Reason
}

func allow() Decision { return Decision{Allow: true} }

func deny(reason Reason) Decision { return Decision{Allow: false, Reason: reason} }
