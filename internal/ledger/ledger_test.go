package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	l, err := Open(Config{Path: path, MaxConnections: 2, WALMode: true})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_UpsertCreatesThenUpdates(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Upsert("abp-933", "Some Title", "Some Actress", "downloading"))
	rec, err := l.Get("abp-933")
	require.NoError(t, err)
	assert.Equal(t, "downloading", rec.Status)
	assert.Equal(t, "Some Title", rec.Name)

	require.NoError(t, l.Upsert("abp-933", "", "", "finished"))
	rec, err = l.Get("abp-933")
	require.NoError(t, err)
	assert.Equal(t, "finished", rec.Status)
	require.NotNil(t, rec.FinishedAt)
}

func TestLedger_InFlightFiltersByStatus(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Upsert("job-a", "A", "A", "downloading"))
	require.NoError(t, l.Upsert("job-b", "B", "B", "finished"))
	require.NoError(t, l.Upsert("job-c", "C", "C", "merging"))

	inFlight, err := l.InFlight()
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range inFlight {
		ids[r.ID] = true
	}
	assert.True(t, ids["job-a"])
	assert.True(t, ids["job-c"])
	assert.False(t, ids["job-b"])
}

func TestLedger_InFlightIDsReturnsJustIDs(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Upsert("job-a", "A", "A", "downloading"))
	require.NoError(t, l.Upsert("job-b", "B", "B", "finished"))
	require.NoError(t, l.Upsert("job-c", "C", "C", "merging"))

	ids, err := l.InFlightIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job-a", "job-c"}, ids)
}

func TestLedger_SetProgressAndError(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, l.Upsert("abp-933", "T", "A", "downloading"))
	require.NoError(t, l.SetProgress("abp-933", 40.0, 1024))
	require.NoError(t, l.SetError("abp-933", "transport_error: timeout"))

	rec, err := l.Get("abp-933")
	require.NoError(t, err)
	assert.InDelta(t, 40.0, rec.Progress, 0.001)
	assert.EqualValues(t, 1024, rec.BytesDone)
	assert.Equal(t, "transport_error: timeout", rec.LastError)
}
