package obs

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/schema"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObservePublished(schema.CommandPlaceOrder, schema.ResultSuccess, 2*time.Microsecond)
	m.ObservePublished(schema.CommandPlaceOrder, schema.ResultInsufficientFunds, 4*time.Microsecond)
	m.ObserveJournal(3, time.Millisecond)
	m.IncReplayed()
	m.SetStallSource(func() uint64 { return 7 })

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.CommandCounts[schema.CommandPlaceOrder])
	assert.EqualValues(t, 1, snap.ResultCounts[schema.ResultInsufficientFunds])
	assert.EqualValues(t, 3, snap.JournalRecords)
	assert.EqualValues(t, 1, snap.Replayed)
	assert.EqualValues(t, 7, snap.Stalls)
	assert.Equal(t, 2*time.Microsecond, snap.PipelineLatency.Min)
	assert.Equal(t, 4*time.Microsecond, snap.PipelineLatency.Max)
	assert.Equal(t, 3*time.Microsecond, snap.PipelineLatency.Avg)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePublished(schema.CommandNop, schema.ResultSuccess, 0)
	m.IncFault()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestCollector(t *testing.T) {
	m := NewMetrics()
	m.ObservePublished(schema.CommandAddUser, schema.ResultSuccess, time.Microsecond)
	m.IncFault()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(m)))

	expected := `
# HELP exchange_faults_total Structural faults.
# TYPE exchange_faults_total counter
exchange_faults_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "exchange_faults_total"))
	n, err := testutil.GatherAndCount(reg, "exchange_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
