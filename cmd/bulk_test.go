package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/config"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/view"
	"github.com/sells-group/verify-cli/internal/workflow"
)

func withPageSize(t *testing.T, n int) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{}
	cfg.Results.PageSize = n
	t.Cleanup(func() { cfg = prev })
}

func TestShowResults_ExportFollowsFilter(t *testing.T) {
	withPageSize(t, 1)

	var rows []model.EmailResult
	for _, e := range []string{"good1@x.com", "bad1@x.com", "good2@x.com", "maybe1@x.com"} {
		rows = append(rows, model.EmailResult{Email: e, Result: verdict(e, model.LevelBasic)})
	}
	res := workflow.Results{Rows: rows, Stats: classify.Aggregate(rows), Total: len(rows)}
	filter, err := view.ParseFilter("good")
	require.NoError(t, err)

	var out bytes.Buffer
	v := showResults(&out, res, filter, 1)
	assert.Contains(t, out.String(), "page 1 of 2")
	require.Len(t, v.Matching(), 2)

	path := filepath.Join(t.TempDir(), "good.csv")
	require.NoError(t, exportResults(path, v.Matching()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "good1@x.com")
	assert.Contains(t, string(data), "good2@x.com")
	assert.NotContains(t, string(data), "bad1@x.com")
	assert.NotContains(t, string(data), "maybe1@x.com")
}

func TestShowResults_ShowsBackendTotal(t *testing.T) {
	withPageSize(t, 50)

	rows := []model.EmailResult{{Email: "good1@x.com", Result: verdict("good1@x.com", model.LevelBasic)}}
	res := workflow.Results{Job: workflow.JobRef{Level: model.LevelBasic}, Rows: rows, Stats: classify.Aggregate(rows), Total: 40}

	var out bytes.Buffer
	showResults(&out, res, view.FilterAll, 1)
	assert.Contains(t, out.String(), "Level 1 results: 1 of 40 addresses")
}
