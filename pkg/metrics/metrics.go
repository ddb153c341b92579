// Copyright © 2018 One Concern

package metrics

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/packpub/pkg/metrics/exporters/zaplog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB

	unitCount    = "count"
	unitSumBytes = "sumbytes"
	unitBps      = "bps"
)

var (
	// global settings for metrics
	mp       *settings
	initOnce sync.Once
)

type settings struct {
	basePath string
	exporter view.Exporter

	allMetrics []stats.Measure
	allViews   []*view.View

	// registered modules, by location
	modules   map[string]interface{}
	exclusive sync.Mutex

	d time.Duration
}

// Option configures the metrics collection
type Option func(*settings)

// WithBasePath prefixes the location of all registered metrics
func WithBasePath(location string) Option {
	return func(s *settings) {
		s.basePath = location
	}
}

// WithExporter sets the exporter of collected views. Views are discarded by default.
func WithExporter(exporter view.Exporter) Option {
	return func(s *settings) {
		if exporter != nil {
			s.exporter = flusher(exporter)
		}
	}
}

// WithReportingPeriod sets how often views are exported. Periods under a second are ignored.
func WithReportingPeriod(d time.Duration) Option {
	return func(s *settings) {
		s.d = d
	}
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		modules: make(map[string]interface{}),
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.exporter == nil {
		s.exporter = flusher(zaplog.NewExporter(nil))
	}

	s.registerExporter()
	return s
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if !equalType(existing, m) {
			panic("trying to re-register existing metrics module with a different type")
		}
		return existing
	}
	scanStruct(location, s.addMetric, m)
	s.modules[location] = m
	return m
}

// Flush collects all remaining data for registered views and exports them
func (s *settings) Flush() {
	now := time.Now()
	for _, v := range s.allViews {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue // ignore errors when pushing metrics
		}
		s.exporter.ExportView(&view.Data{
			View:  v,
			Start: now,
			End:   now,
			Rows:  rows,
		})
	}
}

func (s *settings) registerExporter() {
	view.RegisterExporter(s.exporter)
	if s.d >= time.Second {
		view.SetReportingPeriod(s.d)
	}
}

// addMetric creates a measure with its views, according to the decoded struct tags.
//
// The default view depends on the unit:
//   - counters (unit=count or "") get a count view
//   - bytes get a size distribution view
//   - milliseconds get a duration distribution view
//   - bytespersec get a throughput distribution view
//   - sumbytes get a sum view
//
// Extra views are declared with the extraviews tag, e.g. extraviews:"sum,lastvalue,count"
func (s *settings) addMetric(m interface{}, metric, group string, tags map[string]string) interface{} {
	name := path.Join(group, metric)
	description := tags["description"]
	if description == "" {
		description = describeFromTags(name, tags)
	}
	u, dist := unitAndDist(tags["unit"])

	var measure stats.Measure
	switch m.(type) {
	case *stats.Int64Measure:
		measure = stats.Int64(name, description, u)
	case *stats.Float64Measure:
		measure = stats.Float64(name, description, u)
	default:
		return nil
	}
	s.allMetrics = append(s.allMetrics, measure)

	var keys []tag.Key
	for _, g := range strings.Split(tags["groupings"], ",") {
		if g != "" {
			keys = append(keys, tag.MustNewKey(g))
		}
	}

	s.addView(&view.View{
		Name:        name,
		Description: describeViewFromDist(description, dist),
		Measure:     measure,
		Aggregation: dist,
		TagKeys:     keys,
	})

	for _, extra := range strings.Split(tags["views"], ",") {
		var agg *view.Aggregation
		switch extra {
		case unitCount:
			agg = view.Count()
		case "sum":
			agg = view.Sum()
		case "lastvalue":
			agg = view.LastValue()
		default:
			continue
		}
		s.addView(&view.View{
			Name:        describeViewFromDist(name, agg),
			Description: describeViewFromDist(description, agg),
			Measure:     measure,
			Aggregation: agg,
			TagKeys:     keys,
		})
	}
	return measure
}

func (s *settings) addView(v *view.View) {
	s.allViews = append(s.allViews, v)
	_ = view.Register(v)
}

func durationDistribution() *view.Aggregation {
	// buckets in milliseconds
	return view.Distribution(
		10, 50,
		100, 300, 500, 700, 900,
		1000, 1500, 2000, 3000, 5000, 7000,
		10000, 30000, 60000, 120000, 300000,
	)
}

func bytesDistribution() *view.Aggregation {
	// buckets in bytes, up to the default pack size limit
	return view.Distribution(
		500,
		1*KB, 10*KB, 100*KB, 500*KB,
		1*MB, 4*MB, 16*MB, 64*MB,
		128*MB, 200*MB, 512*MB,
	)
}

func throughputDistribution() *view.Aggregation {
	return view.Distribution(
		1*KB, 50*KB, 100*KB,
		1*MB, 10*MB, 20*MB, 50*MB, 100*MB, 150*MB,
	)
}

func unitAndDist(unit string) (string, *view.Aggregation) {
	switch unit {
	case "milliseconds":
		return stats.UnitMilliseconds, durationDistribution()
	case "bytes":
		return stats.UnitBytes, bytesDistribution()
	case unitSumBytes:
		return stats.UnitBytes, view.Sum()
	case "bytespersec", unitBps:
		return unitBps, throughputDistribution()
	default:
		return stats.UnitDimensionless, view.Count()
	}
}

func describeFromTags(name string, tags map[string]string) string {
	switch unit := tags["unit"]; unit {
	case unitSumBytes:
		return name + " cumulated bytes"
	case "", unitCount:
		return name + " counter"
	default:
		return name + " in " + unit
	}
}

func describeViewFromDist(desc string, in *view.Aggregation) string {
	if in == nil {
		return desc
	}
	switch in.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	default:
		return desc
	}
}

// FlushExporter is a view exporter that knows how to flush metrics,
// concurrently with the background exporter of opencensus.
type FlushExporter interface {
	view.Exporter
	Flush(*view.Data)
}

func flusher(e view.Exporter) FlushExporter {
	return &simpleFlusher{
		e: e,
	}
}

type simpleFlusher struct {
	e view.Exporter
	m sync.RWMutex
}

func (f *simpleFlusher) ExportView(viewData *view.Data) {
	f.m.RLock()
	f.e.ExportView(viewData)
	f.m.RUnlock()
}

func (f *simpleFlusher) Flush(viewData *view.Data) {
	f.m.Lock()
	f.e.ExportView(viewData)
	f.m.Unlock()
}
