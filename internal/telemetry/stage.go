package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// StageMeter 以 OTel 仪表记录流水线阶段，满足 pipeline.Observer。
// 全局 MeterProvider 为 noop 时记录为空操作。
type StageMeter struct {
	duration metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewStageMeter 在给定 MeterProvider 上创建仪表；mp 为 nil 时使用全局 provider
func NewStageMeter(mp metric.MeterProvider, logger *zap.Logger) *StageMeter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := mp.Meter(InstrumentationName + "/pipeline")

	duration, err := meter.Float64Histogram("promptfusion.pipeline.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Pipeline stage latency"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		logger.Warn("stage duration histogram unavailable", zap.Error(err))
	}
	outcomes, err := meter.Int64Counter("promptfusion.pipeline.stage.outcomes",
		metric.WithDescription("Pipeline stage results by outcome"),
	)
	if err != nil {
		logger.Warn("stage outcome counter unavailable", zap.Error(err))
	}
	return &StageMeter{duration: duration, outcomes: outcomes}
}

// ObserveStage 实现 pipeline.Observer
func (m *StageMeter) ObserveStage(pipeline, stage, outcome string, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("stage", stage),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		))
	}
}
