package validators

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/levels"
)

const instrumentationName = "github.com/communisaas/boundary-atlas/pkg/validators"

// Pipeline composes the name-pattern, district-count, geographic-bounds and
// topology validators into a single confidence-scored verdict.
//
// Every validator runs unconditionally — the pipeline never short-circuits
// on first failure, so all diagnostics surface together for operator triage.
// Aggregation uses the MINIMUM rule: a name-pattern pass cannot compensate
// for a catastrophic count failure.
type Pipeline struct {
	levels map[levels.Code]levels.Config
	names  *NameValidator
	counts *CountValidator
	bounds *BoundsValidator
	topo   *TopologyValidator
	logger *slog.Logger

	tracer      trace.Tracer
	validations metric.Int64Counter
	rejections  metric.Int64Counter
}

// NewPipeline wires the default validators over the given bounds index and
// level table.
func NewPipeline(index *BoundsIndex, levelTable map[levels.Code]levels.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(instrumentationName)
	validations, _ := meter.Int64Counter("atlas.validations",
		metric.WithDescription("boundary collections validated"))
	rejections, _ := meter.Int64Counter("atlas.rejections",
		metric.WithDescription("boundary collections rejected"))

	return &Pipeline{
		levels:      levelTable,
		names:       NewNameValidator(),
		counts:      NewCountValidator(),
		bounds:      NewBoundsValidator(index),
		topo:        NewTopologyValidator(),
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		validations: validations,
		rejections:  rejections,
	}
}

// DefaultPipeline builds a pipeline over the curated default boxes and the
// built-in level table.
func DefaultPipeline(logger *slog.Logger) *Pipeline {
	return NewPipeline(NewBoundsIndex(DefaultBoxes()), levels.Defaults(), logger)
}

// Validate runs every validator and aggregates under the MIN rule.
func (p *Pipeline) Validate(ctx context.Context, fc *geometry.FeatureCollection, jurisdictionID string, level levels.Code) (PipelineResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.validate", trace.WithAttributes(
		attribute.String("jurisdiction", jurisdictionID),
		attribute.String("level", string(level)),
		attribute.Int("features", len(fc.Features)),
	))
	defer span.End()

	cfg, ok := p.levels[level]
	if !ok {
		return PipelineResult{}, fmt.Errorf("unknown administrative level %q", level)
	}

	breakdown := map[string]Result{
		"name-pattern":   p.names.Validate(fc, cfg),
		"district-count": p.counts.Validate(fc, cfg),
		"bounds":         p.bounds.Validate(fc, jurisdictionID),
	}
	if hasGeometry(fc) {
		breakdown["topology"] = p.topo.Validate(fc)
	}

	out := Aggregate(breakdown)

	attrs := metric.WithAttributes(
		attribute.String("level", string(level)),
		attribute.Bool("valid", out.Valid),
	)
	p.validations.Add(ctx, 1, attrs)
	if !out.Valid {
		p.rejections.Add(ctx, 1, attrs)
	}

	p.logger.Debug("pipeline verdict",
		"jurisdiction", jurisdictionID,
		"level", level,
		"features", len(fc.Features),
		"valid", out.Valid,
		"confidence", out.Confidence,
		"issues", len(out.Issues),
		"warnings", len(out.Warnings),
	)
	span.SetAttributes(
		attribute.Bool("valid", out.Valid),
		attribute.Int("confidence", out.Confidence),
	)
	return out, nil
}

func hasGeometry(fc *geometry.FeatureCollection) bool {
	for i := range fc.Features {
		if len(fc.Features[i].Polygons) > 0 {
			return true
		}
	}
	return false
}
