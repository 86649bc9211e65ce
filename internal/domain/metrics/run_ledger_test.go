package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLedgerEntryLifecycle(t *testing.T) {
	entry := NewRunLedgerEntry(AllPeriods())

	require.NotEqual(t, "", entry.ID.String())
	assert.Equal(t, RunStatusRunning, entry.Status)
	assert.False(t, entry.IsFinal())
	assert.Nil(t, entry.CompletedAt)

	entry.TenantsProcessed = 42
	entry.Complete()

	assert.Equal(t, RunStatusCompleted, entry.Status)
	assert.True(t, entry.IsFinal())
	require.NotNil(t, entry.CompletedAt)
	assert.GreaterOrEqual(t, entry.ExecutionTime, time.Duration(0))
}

func TestRunLedgerEntryFail(t *testing.T) {
	entry := NewRunLedgerEntry([]Period{Period7d})
	entry.Fail("tenant enumeration failed")

	assert.Equal(t, RunStatusFailed, entry.Status)
	assert.True(t, entry.IsFinal())
	assert.Equal(t, "tenant enumeration failed", entry.ErrorMessage)
	assert.NotNil(t, entry.CompletedAt)
}
