package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats"
)

func TestStructTags(t *testing.T) {
	s := newSettings()
	m := &exampleMetrics{}

	scanStruct("parent", s.addMetric, m)

	assert.Nil(t, m.Telemetry.Ignored)
	assert.Nil(t, m.Telemetry.Measures)

	assert.NotNil(t, m.Telemetry.TestCount)
	assert.Equal(t, "parent/telemetry/testCount", m.Telemetry.TestCount.Name())
	assert.NotNil(t, m.Packs.Size)
	assert.Equal(t, stats.UnitBytes, m.Packs.Size.Unit())
	assert.NotNil(t, m.Network.Requests.Count)
	assert.Equal(t, "parent/network/ioCount", m.Network.Requests.Count.Name())
	assert.NotNil(t, m.Network.Requests.Failures)
	assert.NotNil(t, m.Network.Requests.IOSize)

	require.NotNil(t, m.Network.Requests.IOThroughput)
	assert.IsType(t, &stats.Float64Measure{}, m.Network.Requests.IOThroughput)

	require.NotNil(t, m.Usage, "nil pointers to structs are allocated")
	assert.Equal(t, "parent/usage/timing", m.Usage.Timing.Name())

	assert.Len(t, s.allMetrics, 10)
	assert.Len(t, s.allViews, 13)
}

func TestScanStructRequiresPointer(t *testing.T) {
	s := newSettings()
	assert.Panics(t, func() { scanStruct("x", s.addMetric, exampleMetrics{}) })
	assert.Panics(t, func() { scanStruct("x", s.addMetric, (*exampleMetrics)(nil)) })
}
