// Copyright © 2018 One Concern

package session

import (
	"github.com/oneconcern/packpub/pkg/metrics"
	"go.opencensus.io/stats"
)

// M describes metrics for the session package
type M struct {
	Volume struct {
		Packs packMetrics       `group:"packs" description:"metrics about dispatched object packs"`
		IO    metrics.IOMetrics `group:"io" description:"metrics about pack uploads"`
	} `group:"volumetry" description:""`
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for the session package"`
}

type packMetrics struct {
	PacksCount     *stats.Int64Measure `metric:"packs" extraviews:"sum" tags:"kind,operation" description:"number of dispatched packs"`
	ObjectsCount   *stats.Int64Measure `metric:"objects" extraviews:"sum" tags:"kind,operation" description:"number of objects in dispatched packs"`
	Rollovers      *stats.Int64Measure `metric:"rollovers" extraviews:"sum" tags:"kind,operation" description:"number of packs dispatched because they were full"`
	PackSize       *stats.Int64Measure `metric:"packSize" unit:"bytes" tags:"kind,operation" description:"size of dispatched packs"`
	BytesCommitted *stats.Int64Measure `metric:"bytesCommitted" unit:"sumbytes" tags:"kind,operation" description:"cumulated size of committed objects"`
}

func (*packMetrics) tags(operation string) map[string]string {
	return map[string]string{"kind": "pack", "operation": operation}
}

func (m *packMetrics) Dispatched(size uint64, objects int, operation string) {
	metrics.Inc(m.PacksCount, m.tags(operation))
	metrics.Int64(m.ObjectsCount, int64(objects), m.tags(operation))
	metrics.Int64(m.PackSize, int64(size), m.tags(operation))
}

func (m *packMetrics) IncRollover() {
	metrics.Inc(m.Rollovers, m.tags("rollover"))
}

func (m *packMetrics) Committed(size uint64) {
	metrics.Int64(m.BytesCommitted, int64(size), m.tags("commit"))
}
