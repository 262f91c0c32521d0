// Package classify maps verification results onto risk tiers.
//
// Every function here is pure: the tier is recomputed from the result each
// time it is needed so it can never drift from its source.
package classify

import (
	"github.com/sells-group/verify-cli/internal/model"
)

// Classify returns the tier of r. A nil result is treated as unverified and
// lands in the risky tier; callers counting tiers should skip nil results.
func Classify(r *model.VerificationResult) model.Tier {
	switch {
	case IsGood(r):
		return model.TierGood
	case IsRisky(r):
		return model.TierRisky
	default:
		return model.TierBad
	}
}

// IsGood reports whether the backend confirmed the mailbox exists.
func IsGood(r *model.VerificationResult) bool {
	return reachable(r) == model.ReachableYes
}

// IsBad reports whether the address is known undeliverable. Good wins over bad.
func IsBad(r *model.VerificationResult) bool {
	if r == nil || IsGood(r) {
		return false
	}
	return r.Reachable == model.ReachableNo || r.Disposable || !r.HasMXRecords
}

// IsRisky reports whether the address is neither good nor bad.
func IsRisky(r *model.VerificationResult) bool {
	return !IsGood(r) && !IsBad(r)
}

// Escalatable reports whether a level-1 answer is worth an SMTP pass: the
// mailbox is untested but the domain accepts mail.
func Escalatable(r *model.VerificationResult) bool {
	return r != nil && reachable(r) == model.ReachableUnknown && r.HasMXRecords
}

func reachable(r *model.VerificationResult) string {
	if r == nil || r.Reachable == "" {
		return model.ReachableUnknown
	}
	return r.Reachable
}
