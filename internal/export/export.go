// Package export writes verification rows as CSV or XLSX.
package export

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
)

// Columns is the header row shared by every format.
var Columns = []string{
	"email",
	"reachable",
	"syntax_valid",
	"syntax_username",
	"syntax_domain",
	"disposable",
	"role_account",
	"free",
	"has_mx_records",
	"suggestion",
	"smtp_host_exists",
	"smtp_full_inbox",
	"smtp_catch_all",
	"smtp_deliverable",
	"smtp_disabled",
	"tier",
}

// Record flattens row into Columns order. Rows without a verdict carry only
// the address; SMTP fields are blank for level-1 verdicts.
func Record(row model.EmailResult) []string {
	rec := make([]string, len(Columns))
	rec[0] = row.Email
	r := row.Result
	if r == nil {
		return rec
	}

	rec[0] = r.Email
	if rec[0] == "" {
		rec[0] = row.Email
	}
	rec[1] = r.Reachable
	rec[2] = strconv.FormatBool(r.Syntax.Valid)
	rec[3] = r.Syntax.Username
	rec[4] = r.Syntax.Domain
	rec[5] = strconv.FormatBool(r.Disposable)
	rec[6] = strconv.FormatBool(r.RoleAccount)
	rec[7] = strconv.FormatBool(r.Free)
	rec[8] = strconv.FormatBool(r.HasMXRecords)
	rec[9] = r.Suggestion
	if s := r.SMTP; s != nil {
		rec[10] = strconv.FormatBool(s.HostExists)
		rec[11] = strconv.FormatBool(s.FullInbox)
		rec[12] = strconv.FormatBool(s.CatchAll)
		rec[13] = strconv.FormatBool(s.Deliverable)
		rec[14] = strconv.FormatBool(s.Disabled)
	}
	rec[15] = string(classify.Classify(r))
	return rec
}

// WriteCSV writes a header and one record per row.
func WriteCSV(w io.Writer, rows []model.EmailResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range rows {
		if err := cw.Write(Record(row)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", row.Email)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX saves rows to a single-sheet workbook at path.
func WriteXLSX(path string, rows []model.EmailResult) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Columns)
	for _, row := range rows {
		addRow(sheet, Record(row))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// ToFile picks the format from path's extension: .xlsx or CSV otherwise.
func ToFile(path string, rows []model.EmailResult, create func(string) (io.WriteCloser, error)) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, rows)
	}

	w, err := create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteCSV(w, rows); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(w.Close(), "export: close %s", path)
}

func addRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}
