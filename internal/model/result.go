package model

// Reachable values reported by the backend.
const (
	ReachableYes     = "yes"
	ReachableNo      = "no"
	ReachableUnknown = "unknown"
)

// Syntax holds the backend's parse of the address.
type Syntax struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	Valid    bool   `json:"valid"`
}

// SMTP holds the outcome of a level-2 handshake. Absent for level-1 results.
type SMTP struct {
	HostExists  bool `json:"host_exists"`
	FullInbox   bool `json:"full_inbox"`
	CatchAll    bool `json:"catch_all"`
	Deliverable bool `json:"deliverable"`
	Disabled    bool `json:"disabled"`
}

// VerificationResult is the immutable backend verdict for one address.
type VerificationResult struct {
	Email        string `json:"email"`
	Reachable    string `json:"reachable"`
	Syntax       Syntax `json:"syntax"`
	SMTP         *SMTP  `json:"smtp"`
	Suggestion   string `json:"suggestion"`
	Disposable   bool   `json:"disposable"`
	RoleAccount  bool   `json:"role_account"`
	Free         bool   `json:"free"`
	HasMXRecords bool   `json:"has_mx_records"`
}

// CatchAll reports whether the SMTP pass flagged the domain as catch-all.
func (r *VerificationResult) CatchAll() bool {
	return r != nil && r.SMTP != nil && r.SMTP.CatchAll
}

// EmailResult is one row of a bulk job. Result is nil when the backend
// failed to verify the address, in which case Error is set.
type EmailResult struct {
	Email  string              `json:"email"`
	Result *VerificationResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Tier is the risk classification derived from a VerificationResult. It is
// always computed, never stored alongside the result.
type Tier string

const (
	TierGood  Tier = "good"
	TierRisky Tier = "risky"
	TierBad   Tier = "bad"
)

// Tiers lists every tier in display order.
var Tiers = []Tier{TierGood, TierRisky, TierBad}

// ParseTier converts a string into a Tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierGood, TierRisky, TierBad:
		return Tier(s), true
	}
	return "", false
}

// Phase2Selection is the operator's choice of which tiers to resubmit at level 2.
type Phase2Selection struct {
	Good  bool `json:"good"`
	Risky bool `json:"risky"`
	Bad   bool `json:"bad"`
}

// DefaultPhase2Selection returns the selection a fresh session starts with.
func DefaultPhase2Selection() Phase2Selection {
	return Phase2Selection{Good: true}
}

// Includes reports whether the tier is enabled in the selection.
func (s Phase2Selection) Includes(t Tier) bool {
	switch t {
	case TierGood:
		return s.Good
	case TierRisky:
		return s.Risky
	case TierBad:
		return s.Bad
	}
	return false
}

// Empty reports whether no tier is selected.
func (s Phase2Selection) Empty() bool {
	return !s.Good && !s.Risky && !s.Bad
}

// Stats aggregates tier counts and independent diagnostic counters over a
// result collection.
type Stats struct {
	Good        int `json:"good"`
	Risky       int `json:"risky"`
	Bad         int `json:"bad"`
	SyntaxValid int `json:"syntax"`
	Disposable  int `json:"disposable"`
	NoMX        int `json:"mx"`
}

// Classified returns the number of rows that received a tier.
func (s Stats) Classified() int {
	return s.Good + s.Risky + s.Bad
}

// Count returns the tier count for t.
func (s Stats) Count(t Tier) int {
	switch t {
	case TierGood:
		return s.Good
	case TierRisky:
		return s.Risky
	case TierBad:
		return s.Bad
	}
	return 0
}
