// Package extract pulls email-shaped candidates out of free-form operator input.
//
// Extraction is a lexical filter, not a validator: syntax is re-checked by the
// verification backend and reported on each result.
package extract

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// ErrNoEmails is returned when the input contains no candidate addresses.
var ErrNoEmails = eris.New("no emails found")

// SoftLimit is the operator guideline for addresses per submission. It is
// advisory and never enforced.
const SoftLimit = 100000

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Extract returns every email-shaped substring of text in order of
// occurrence. Duplicates are kept and nothing is trimmed or lowercased.
func Extract(text string) []string {
	return emailPattern.FindAllString(text, -1)
}

// Candidates is Extract with the empty case turned into ErrNoEmails.
func Candidates(text string) ([]string, error) {
	emails := Extract(text)
	if len(emails) == 0 {
		return nil, ErrNoEmails
	}
	return emails, nil
}
