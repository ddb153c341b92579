// Copyright © 2018 One Concern

// Package zaplog exports opencensus views as structured log entries.
package zaplog

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

var _ view.Exporter = &Exporter{}

// Exporter logs every exported row of a view
type Exporter struct {
	l *zap.Logger
}

// NewExporter builds a log exporter. A nil logger discards everything.
func NewExporter(l *zap.Logger) *Exporter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Exporter{l: l.Named("metrics")}
}

// ExportView logs the rows of a view
func (e *Exporter) ExportView(viewData *view.Data) {
	if viewData == nil || viewData.View == nil {
		return
	}
	for _, row := range viewData.Rows {
		fields := make([]zap.Field, 0, len(row.Tags)+2)
		fields = append(fields, zap.String("view", viewData.View.Name))
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		switch data := row.Data.(type) {
		case *view.CountData:
			fields = append(fields, zap.Int64("count", data.Value))
		case *view.SumData:
			fields = append(fields, zap.Float64("sum", data.Value))
		case *view.LastValueData:
			fields = append(fields, zap.Float64("last", data.Value))
		case *view.DistributionData:
			fields = append(fields, zap.Int64("count", data.Count), zap.Float64("mean", data.Mean),
				zap.Float64("min", data.Min), zap.Float64("max", data.Max))
		}
		e.l.Info("metric", fields...)
	}
}
