package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/single"
	"github.com/sells-group/verify-cli/internal/view"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

func validOutput(format string) error {
	if format != outputText && format != outputYAML {
		return eris.Errorf("unknown output format %q (want text or yaml)", format)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return eris.Wrap(enc.Close(), "encode yaml")
}

// formatSummary prints tier counts and diagnostic counters for one job.
// total is the backend's address count; a larger total than rows means the
// fetch was capped.
func formatSummary(w io.Writer, level model.Level, stats model.Stats, rows, total int) {
	if total > rows {
		fmt.Fprintf(w, "Level %d results: %d of %d addresses (fetch capped by backend)\n", level, rows, total)
	} else {
		fmt.Fprintf(w, "Level %d results: %d addresses\n", level, rows)
	}
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range model.Tiers {
		fmt.Fprintf(tw, "  %s\t%d\n", title.String(string(t)), stats.Count(t))
	}
	if errs := rows - stats.Classified(); errs > 0 {
		fmt.Fprintf(tw, "  Errors\t%d\n", errs)
	}
	fmt.Fprintf(tw, "  Syntax valid\t%d\n", stats.SyntaxValid)
	fmt.Fprintf(tw, "  Disposable\t%d\n", stats.Disposable)
	fmt.Fprintf(tw, "  No MX\t%d\n", stats.NoMX)
	tw.Flush()
}

// formatResults prints the current page of v.
func formatResults(w io.Writer, v *view.View) {
	filter := string(v.Filter())
	if filter == "" {
		filter = "all"
	}
	fmt.Fprintf(w, "Showing %s: page %d of %d (%d rows)\n", filter, v.Page(), v.PageCount(), v.Total())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tTIER\tSYNTAX\tMX\tDISPOSABLE\tSMTP")
	for _, row := range v.Rows() {
		tier := "-"
		syntax, mx, disposable := "-", "-", "-"
		if row.Result != nil {
			tier = string(classify.Classify(row.Result))
			syntax = yesNo(row.Result.Syntax.Valid)
			mx = yesNo(row.Result.HasMXRecords)
			disposable = yesNo(row.Result.Disposable)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Email, tier, syntax, mx, disposable, classify.Badge(row.Result))
	}
	tw.Flush()
}

func formatSessions(w io.Writer, sessions []model.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tADDRESSES\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			shortID(s.ID), truncate(s.Source, 40), s.Addresses, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func formatSession(w io.Writer, sess *model.Session, stats model.Stats, rows int) {
	fmt.Fprintf(w, "Session %s\n", sess.ID)
	fmt.Fprintf(w, "Source:    %s\n", sess.Source)
	fmt.Fprintf(w, "Addresses: %d\n", sess.Addresses)
	fmt.Fprintf(w, "Created:   %s\n\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tLEVEL\tSTATUS\tTOTAL\tSUBMITTED")
	for _, j := range sess.Jobs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n",
			j.ID, j.Level, j.Status, j.Total, j.SubmittedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Latest results: %d rows (good %d, risky %d, bad %d)\n", rows, stats.Good, stats.Risky, stats.Bad)
}

func formatCheck(w io.Writer, c *single.Check) {
	suffix := ""
	if c.Cached {
		suffix = " (cached)"
	}
	fmt.Fprintf(w, "%s: %s%s\n", c.Email, c.Label, suffix)
	if c.Result != nil {
		fmt.Fprintf(w, "  SMTP: %s\n", classify.SMTPStatus(c.Result))
	}
	if c.Result != nil && c.Result.Suggestion != "" {
		fmt.Fprintf(w, "  did you mean %s?\n", c.Result.Suggestion)
	}
}

func formatProgress(w io.Writer, job *model.Job) {
	fmt.Fprintf(w, "job %s: %s %d/%d (%.0f%%)\n", shortID(job.ID), job.Status, job.Done, job.Total, job.Progress()*100)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseSelection turns "good,risky" into a phase-2 selection.
func parseSelection(s string) (model.Phase2Selection, error) {
	var sel model.Phase2Selection
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, ok := model.ParseTier(part)
		if !ok {
			return sel, eris.Errorf("unknown tier %q (want good, risky or bad)", part)
		}
		switch t {
		case model.TierGood:
			sel.Good = true
		case model.TierRisky:
			sel.Risky = true
		case model.TierBad:
			sel.Bad = true
		}
	}
	return sel, nil
}
