package consolidation

import (
	"context"

	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/metrics"
	"github.com/rcliao/working-memory/internal/model"
)

// fallbackExtractor runs primary and, on any error, fallback.
type fallbackExtractor struct {
	primary, fallback Extractor
	log               logger.Logger
	metrics           *metrics.Recorder
}

// ExtractorWithFallback returns an Extractor that never surfaces a primary
// failure while fallback succeeds.
func ExtractorWithFallback(primary, fallback Extractor, log logger.Logger, m *metrics.Recorder) Extractor {
	return &fallbackExtractor{primary: primary, fallback: fallback, log: logger.OrGlobal(log), metrics: m}
}

func (f *fallbackExtractor) Extract(ctx context.Context, episodes []model.Episode) ([]Candidate, error) {
	out, err := f.primary.Extract(ctx, episodes)
	if err == nil {
		return out, nil
	}
	f.log.WarnContext(ctx, "principle extraction failed, using heuristic", "error", err)
	f.metrics.LLMFallback("extract")
	return f.fallback.Extract(ctx, episodes)
}

type fallbackReflector struct {
	primary, fallback Reflector
	log               logger.Logger
	metrics           *metrics.Recorder
}

// ReflectorWithFallback returns a Reflector that never surfaces a primary
// failure while fallback succeeds.
func ReflectorWithFallback(primary, fallback Reflector, log logger.Logger, m *metrics.Recorder) Reflector {
	return &fallbackReflector{primary: primary, fallback: fallback, log: logger.OrGlobal(log), metrics: m}
}

func (f *fallbackReflector) Reflect(ctx context.Context, episodes []model.Episode) (*Draft, error) {
	out, err := f.primary.Reflect(ctx, episodes)
	if err == nil {
		return out, nil
	}
	f.log.WarnContext(ctx, "reflection failed, using heuristic", "error", err)
	f.metrics.LLMFallback("reflect")
	return f.fallback.Reflect(ctx, episodes)
}
