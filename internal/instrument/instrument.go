// Package instrument implements the canonical instrument ID grammar and its
// routing semantics: [<asset-class>:]<venue>:<type>:<payload>[@<chain-or-settlement>]
package instrument

import (
	"fmt"
	"strings"
)

// Type is the instrument type segment of a canonical ID.
type Type string

const (
	TypeSpotPair   Type = "SPOT_PAIR"
	TypeSpotAsset  Type = "SPOT_ASSET"
	TypePerpetual  Type = "PERPETUAL"
	TypeFuture     Type = "FUTURE"
	TypeOption     Type = "OPTION"
	TypePool       Type = "POOL"
	TypeLST        Type = "LST"
	TypeAToken     Type = "A_TOKEN"
	TypeDebtToken  Type = "DEBT_TOKEN"
	TypeEquity     Type = "EQUITY"
	TypeIndex      Type = "INDEX"
	TypeMatchWin   Type = "MATCH_WINNER"
	TypeTotalGoals Type = "TOTAL_GOALS_OU_2_5"
	TypeBTTS       Type = "BTTS"
)

// routingTypes may have an absent or advisory venue component; the router
// may substitute any venue offering the instrument.
var routingTypes = map[Type]bool{
	TypeSpotPair: true,
}

// bettingTypes carry a :selection suffix in their position key.
var bettingTypes = map[Type]bool{
	TypeMatchWin:   true,
	TypeTotalGoals: true,
	TypeBTTS:       true,
}

// ParseError is the distinguished structural error returned by Parse.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("instrument: malformed canonical id %q: %s", e.Input, e.Reason)
}

// ID is the parsed representation of a canonical instrument identifier.
// Render(Parse(s)) must reproduce s exactly for every valid s.
type ID struct {
	AssetClass string // optional leading segment
	Venue      string // may be empty for an advisory routing instrument
	Type       Type
	Payload    string
	Settlement string // optional @chain-or-settlement suffix
}

// IsRoutingInstrument reports whether the venue component is advisory: the
// router may pick any venue offering the pair.
func (id ID) IsRoutingInstrument() bool {
	return routingTypes[id.Type]
}

// IsBettingInstrument reports whether this instrument belongs to a betting
// market family, whose position key carries a :selection suffix.
func (id ID) IsBettingInstrument() bool {
	return bettingTypes[id.Type]
}

// Parse parses a canonical instrument ID string. Parsing is total: any
// string that does not conform to the grammar is rejected with a *ParseError.
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, &ParseError{Input: s, Reason: "empty string"}
	}

	body := s
	settlement := ""
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		body = s[:at]
		settlement = s[at+1:]
		if settlement == "" {
			return ID{}, &ParseError{Input: s, Reason: "empty settlement suffix after '@'"}
		}
	}

	parts := strings.Split(body, ":")
	var assetClass, venue, typ, payload string
	switch len(parts) {
	case 3:
		venue, typ, payload = parts[0], parts[1], parts[2]
	case 4:
		assetClass, venue, typ, payload = parts[0], parts[1], parts[2], parts[3]
	default:
		return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("expected 3 or 4 colon-separated segments, got %d", len(parts))}
	}

	if typ == "" {
		return ID{}, &ParseError{Input: s, Reason: "missing type segment"}
	}
	t := Type(typ)
	if !knownType(t) {
		return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("unknown instrument type %q", typ)}
	}
	if payload == "" {
		return ID{}, &ParseError{Input: s, Reason: "missing payload segment"}
	}
	if !routingTypes[t] && venue == "" {
		return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("venue is required for position/venue-bound type %q", typ)}
	}

	id := ID{AssetClass: assetClass, Venue: venue, Type: t, Payload: payload, Settlement: settlement}
	if err := validatePayload(id); err != nil {
		return ID{}, err
	}
	return id, nil
}

func knownType(t Type) bool {
	switch t {
	case TypeSpotPair, TypeSpotAsset, TypePerpetual, TypeFuture, TypeOption, TypePool,
		TypeLST, TypeAToken, TypeDebtToken, TypeEquity, TypeIndex,
		TypeMatchWin, TypeTotalGoals, TypeBTTS:
		return true
	default:
		return false
	}
}

// validatePayload enforces the per-type payload schema, e.g. OPTION's
// <base>-<quote>-<YYMMDD>-<strike>-<CALL|PUT>.
func validatePayload(id ID) error {
	switch id.Type {
	case TypeOption:
		segs := strings.Split(id.Payload, "-")
		if len(segs) != 5 {
			return &ParseError{Input: id.render(), Reason: "OPTION payload requires <base>-<quote>-<YYMMDD>-<strike>-<CALL|PUT>"}
		}
		if segs[4] != "CALL" && segs[4] != "PUT" {
			return &ParseError{Input: id.render(), Reason: "OPTION payload must end in CALL or PUT"}
		}
		if len(segs[2]) != 6 {
			return &ParseError{Input: id.render(), Reason: "OPTION payload expiry must be YYMMDD"}
		}
	case TypeSpotPair, TypeSpotAsset:
		if strings.Contains(id.Payload, " ") {
			return &ParseError{Input: id.render(), Reason: "payload must not contain whitespace"}
		}
	case TypeMatchWin, TypeTotalGoals, TypeBTTS:
		if id.Payload == "" {
			return &ParseError{Input: id.render(), Reason: "betting market payload required"}
		}
	}
	return nil
}

// Render reproduces the canonical string form of id.
func Render(id ID) string {
	return id.render()
}

func (id ID) render() string {
	var b strings.Builder
	if id.AssetClass != "" {
		b.WriteString(id.AssetClass)
		b.WriteByte(':')
	}
	b.WriteString(id.Venue)
	b.WriteByte(':')
	b.WriteString(string(id.Type))
	b.WriteByte(':')
	b.WriteString(id.Payload)
	if id.Settlement != "" {
		b.WriteByte('@')
		b.WriteString(id.Settlement)
	}
	return b.String()
}

func (id ID) String() string { return id.render() }
