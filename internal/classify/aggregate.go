package classify

import "github.com/sells-group/verify-cli/internal/model"

// Aggregate counts tiers and diagnostics over rows. Rows without a result are
// skipped, so Good+Risky+Bad equals the number of rows carrying a result.
func Aggregate(rows []model.EmailResult) model.Stats {
	var s model.Stats
	for _, row := range rows {
		r := row.Result
		if r == nil {
			continue
		}

		switch Classify(r) {
		case model.TierGood:
			s.Good++
		case model.TierBad:
			s.Bad++
		default:
			s.Risky++
		}

		if r.Syntax.Valid {
			s.SyntaxValid++
		}
		if r.Disposable {
			s.Disposable++
		}
		if !r.HasMXRecords {
			s.NoMX++
		}
	}
	return s
}

// Matches reports whether row belongs to tier. Rows without a result count as
// risky.
func Matches(row model.EmailResult, tier model.Tier) bool {
	return Classify(row.Result) == tier
}
