package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/verify-cli/internal/model"
)

func row(email, reachable string) model.EmailResult {
	return model.EmailResult{
		Email:  email,
		Result: &model.VerificationResult{Email: email, Reachable: reachable, HasMXRecords: true},
	}
}

func TestMergeLatest_Empty(t *testing.T) {
	assert.Nil(t, mergeLatest(nil))
}

func TestMergeLatest_SingleSetKeepsDuplicates(t *testing.T) {
	set := []model.EmailResult{row("a@x.com", "unknown"), row("b@x.com", "no"), row("a@x.com", "unknown")}
	got := mergeLatest([][]model.EmailResult{set})
	assert.Equal(t, set, got)
}

func TestMergeLatest_HigherLevelWins(t *testing.T) {
	level1 := []model.EmailResult{
		row("a@x.com", "unknown"),
		row("b@x.com", "no"),
		row("a@x.com", "unknown"),
		row("c@x.com", "unknown"),
	}
	level2 := []model.EmailResult{
		row("a@x.com", "yes"),
		row("c@x.com", "no"),
	}

	got := mergeLatest([][]model.EmailResult{level1, level2})
	assert.Len(t, got, 4)
	assert.Equal(t, "yes", got[0].Result.Reachable)
	assert.Equal(t, "no", got[1].Result.Reachable)
	assert.Equal(t, "yes", got[2].Result.Reachable)
	assert.Equal(t, "no", got[3].Result.Reachable)
}

func TestMergeLatest_NewAddressInLaterSetIsAppended(t *testing.T) {
	level1 := []model.EmailResult{row("a@x.com", "unknown")}
	level2 := []model.EmailResult{row("z@x.com", "yes"), row("z@x.com", "yes")}

	got := mergeLatest([][]model.EmailResult{level1, level2})
	assert.Len(t, got, 3)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Equal(t, "z@x.com", got[1].Email)
	assert.Equal(t, "z@x.com", got[2].Email)
}

func TestMergeLatest_FirstLaterRowWins(t *testing.T) {
	level1 := []model.EmailResult{row("a@x.com", "unknown")}
	level2 := []model.EmailResult{row("a@x.com", "yes"), row("a@x.com", "no")}

	got := mergeLatest([][]model.EmailResult{level1, level2})
	assert.Len(t, got, 1)
	assert.Equal(t, "yes", got[0].Result.Reachable)
}
