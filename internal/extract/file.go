package extract

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadFile loads an intake file and extracts its candidates. Plain text and
// CSV files are read as text; XLSX workbooks are flattened cell by cell.
func ReadFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		text, err := xlsxText(path)
		if err != nil {
			return nil, err
		}
		return Candidates(text)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "extract: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadText(f)
	}
}

// ReadText reads r fully and extracts its candidates.
func ReadText(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "extract: read input")
	}
	return Candidates(string(data))
}

func xlsxText(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrap(err, "extract: open xlsx")
	}

	var b strings.Builder
	for _, sheet := range f.Sheets {
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				b.WriteString(cell.String())
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
