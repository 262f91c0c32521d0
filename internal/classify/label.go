package classify

import "github.com/sells-group/verify-cli/internal/model"

// Labels shown by the single-address view.
const (
	LabelGood       = "Good / Deliverable"
	LabelCatchAll   = "Catch-All (Risky)"
	LabelDisposable = "Disposable Address"
	LabelInvalid    = "Invalid / Non-Existing"
	LabelUnknown    = "Unknown"
)

// Badges shown in the bulk results table.
const (
	BadgeGood     = "DELIVERABLE / GOOD"
	BadgeCatchAll = "CATCH ALL / RISKY"
	BadgeBad      = "NON-EXISTENT / BAD"
	BadgeUntested = "UNTESTED"
)

// DisplayLabel returns the single-check headline for r. A catch-all answer is
// shown as risky even though its tier may differ: this is presentation only.
func DisplayLabel(r *model.VerificationResult) string {
	switch {
	case r == nil:
		return LabelUnknown
	case r.Reachable == model.ReachableYes:
		return LabelGood
	case r.CatchAll():
		return LabelCatchAll
	case r.Disposable:
		return LabelDisposable
	case r.Reachable == model.ReachableNo || !r.HasMXRecords:
		return LabelInvalid
	default:
		return LabelUnknown
	}
}

// Badge returns the SMTP column text for a bulk row.
func Badge(r *model.VerificationResult) string {
	switch {
	case r == nil:
		return BadgeUntested
	case r.Reachable == model.ReachableYes:
		return BadgeGood
	case r.CatchAll():
		return BadgeCatchAll
	case r.Reachable == model.ReachableNo:
		return BadgeBad
	default:
		return BadgeUntested
	}
}

// SMTPStatus summarizes the reachable field as Pass, Fail or Untested.
func SMTPStatus(r *model.VerificationResult) string {
	switch reachable(r) {
	case model.ReachableYes:
		return "Pass"
	case model.ReachableNo:
		return "Fail"
	default:
		return "Untested"
	}
}
