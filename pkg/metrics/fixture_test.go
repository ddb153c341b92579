package metrics

import "go.opencensus.io/stats"

type exampleMetrics struct {
	Telemetry struct {
		Ignored   []IOMetrics           `group:"ignored"`
		Measures  []*stats.Int64Measure `group:"measures"`
		TestCount *stats.Int64Measure   `metric:"testCount" description:"number of tests"`
	} `group:"telemetry"`
	Packs struct {
		Size *stats.Int64Measure `metric:"packSize" unit:"bytes" extraviews:"sum,count" tags:"kind"`
	} `group:"packs"`
	Network struct {
		Requests IOMetrics
	} `group:"network"`
	Usage *UsageMetrics `group:"usage"`
}

func (e *exampleMetrics) IncTest() {
	Inc(e.Telemetry.TestCount, map[string]string{"kind": "test"})
}
