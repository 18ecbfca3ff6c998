package instrument

import "strings"

// PositionKey returns the canonical key under which a holding resulting from
// trading id accrues, per §4.1:
//   - SPOT_PAIR trades accrue to a SPOT_ASSET key on the resolved venue,
//     keyed on the base asset of the pair;
//   - venue-bound derivatives (PERPETUAL, FUTURE, OPTION, POOL, A_TOKEN,
//     DEBT_TOKEN, LST, EQUITY, INDEX) key on the instrument itself;
//   - betting markets append the :selection suffix.
//
// resolvedVenue is the venue chosen by routing (required for SPOT_PAIR,
// whose own Venue field may be empty or merely advisory). selection is
// required (non-empty) for betting instruments and ignored otherwise.
func PositionKey(id ID, resolvedVenue string, selection string) (string, error) {
	switch {
	case id.Type == TypeSpotPair:
		base, err := spotPairBase(id.Payload)
		if err != nil {
			return "", err
		}
		venue := resolvedVenue
		if venue == "" {
			venue = id.Venue
		}
		key := ID{Venue: venue, Type: TypeSpotAsset, Payload: base}
		return key.render(), nil
	case id.IsBettingInstrument():
		if selection == "" {
			return "", &ParseError{Input: id.render(), Reason: "selection is required to derive a position key for a betting instrument"}
		}
		return id.render() + ":" + selection, nil
	default:
		return id.render(), nil
	}
}

// spotPairBase extracts the base asset from a SPOT_PAIR payload such as
// "BTC-USDT" (-> "BTC").
func spotPairBase(payload string) (string, error) {
	segs := strings.SplitN(payload, "-", 2)
	if len(segs) != 2 || segs[0] == "" {
		return "", &ParseError{Input: payload, Reason: "SPOT_PAIR payload must be <base>-<quote>"}
	}
	return segs[0], nil
}
