package export

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/verify-cli/internal/model"
)

func sampleRows() []model.EmailResult {
	return []model.EmailResult{
		{
			Email: "joe@example.com",
			Result: &model.VerificationResult{
				Email:        "joe@example.com",
				Reachable:    model.ReachableYes,
				Syntax:       model.Syntax{Username: "joe", Domain: "example.com", Valid: true},
				HasMXRecords: true,
				Free:         true,
				SMTP:         &model.SMTP{HostExists: true, Deliverable: true},
			},
		},
		{
			Email: "tmp@mailinator.com",
			Result: &model.VerificationResult{
				Email:        "tmp@mailinator.com",
				Reachable:    model.ReachableUnknown,
				Syntax:       model.Syntax{Username: "tmp", Domain: "mailinator.com", Valid: true},
				Disposable:   true,
				HasMXRecords: true,
				Suggestion:   "",
			},
		},
		{Email: "broken@", Error: "invalid"},
	}
}

func TestRecord(t *testing.T) {
	rows := sampleRows()

	rec := Record(rows[0])
	require.Len(t, rec, len(Columns))
	assert.Equal(t, []string{
		"joe@example.com", "yes", "true", "joe", "example.com", "false", "false", "true", "true", "",
		"true", "false", "false", "true", "false", "good",
	}, rec)

	rec = Record(rows[1])
	assert.Equal(t, "", rec[10], "no SMTP block at level 1")
	assert.Equal(t, "bad", rec[15])

	rec = Record(rows[2])
	assert.Equal(t, "broken@", rec[0])
	for _, v := range rec[1:] {
		assert.Empty(t, v)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "joe@example.com", records[1][0])
	assert.Equal(t, "broken@", records[3][0])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path, sampleRows()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "email", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "tmp@mailinator.com", sheet.Rows[2].Cells[0].String())
	assert.Equal(t, "bad", sheet.Rows[2].Cells[15].String())
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	create := func(p string) (io.WriteCloser, error) { return os.Create(p) }

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, ToFile(csvPath, sampleRows(), create))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "email,reachable,syntax_valid")

	xlsxPath := filepath.Join(dir, "out.XLSX")
	require.NoError(t, ToFile(xlsxPath, sampleRows(), create))
	_, err = xlsx.OpenFile(xlsxPath)
	require.NoError(t, err)
}
