// Package view pages and filters a result set for display.
package view

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
)

// DefaultPageSize is the number of rows shown per page.
const DefaultPageSize = 50

// Filter selects which rows are visible. The zero value shows every row.
type Filter string

// FilterAll shows every row.
const FilterAll Filter = ""

// ParseFilter accepts "", "all", or a tier name.
func ParseFilter(s string) (Filter, error) {
	if s == "" || s == "all" {
		return FilterAll, nil
	}
	if t, ok := model.ParseTier(s); ok {
		return Filter(t), nil
	}
	return FilterAll, eris.Errorf("view: unknown filter %q (want all, good, risky or bad)", s)
}

// View is a filtered, paginated window over rows. Pages are 1-based.
// It is not safe for concurrent use.
type View struct {
	rows     []model.EmailResult
	filtered []model.EmailResult
	filter   Filter
	page     int
	pageSize int
}

// New creates a View on page 1 showing every row.
func New(rows []model.EmailResult, pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	v := &View{rows: rows, page: 1, pageSize: pageSize}
	v.apply()
	return v
}

// SetFilter changes the filter and returns to page 1.
func (v *View) SetFilter(f Filter) {
	v.filter = f
	v.page = 1
	v.apply()
}

// Filter returns the active filter.
func (v *View) Filter() Filter {
	return v.filter
}

// SetPage moves to page p, clamped to [1, PageCount()].
func (v *View) SetPage(p int) {
	if p > v.PageCount() {
		p = v.PageCount()
	}
	if p < 1 {
		p = 1
	}
	v.page = p
}

// Page returns the current page number.
func (v *View) Page() int {
	return v.page
}

// PageCount returns ceil(filtered/pageSize), at least 1.
func (v *View) PageCount() int {
	n := (len(v.filtered) + v.pageSize - 1) / v.pageSize
	if n < 1 {
		return 1
	}
	return n
}

// Total returns the number of rows matching the filter.
func (v *View) Total() int {
	return len(v.filtered)
}

// Rows returns the rows on the current page.
func (v *View) Rows() []model.EmailResult {
	start := (v.page - 1) * v.pageSize
	if start >= len(v.filtered) {
		return nil
	}
	end := start + v.pageSize
	if end > len(v.filtered) {
		end = len(v.filtered)
	}
	return v.filtered[start:end]
}

// Matching returns every row matching the filter, across all pages.
func (v *View) Matching() []model.EmailResult {
	return v.filtered
}

func (v *View) apply() {
	if v.filter == FilterAll {
		v.filtered = v.rows
		return
	}
	tier := model.Tier(v.filter)
	out := make([]model.EmailResult, 0, len(v.rows))
	for _, row := range v.rows {
		if classify.Matches(row, tier) {
			out = append(out, row)
		}
	}
	v.filtered = out
}
