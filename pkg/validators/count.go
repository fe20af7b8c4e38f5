package validators

import (
	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/levels"
)

// CountValidator scores the feature count against the level's hard range
// and typical sub-range.
type CountValidator struct{}

// NewCountValidator creates a count validator.
func NewCountValidator() *CountValidator { return &CountValidator{} }

// Validate applies the level's count thresholds:
//
//	outside [min,max]          -> reject, confidence < 20
//	inside typical sub-range   -> confidence >= 90
//	inside [min,max] otherwise -> [60,90) with an "unusual count" warning
func (v *CountValidator) Validate(fc *geometry.FeatureCollection, cfg levels.Config) Result {
	n := len(fc.Features)
	if n == 0 {
		return reject(0, "empty collection: no features to count")
	}
	if n < cfg.MinCount || n > cfg.MaxCount {
		return reject(10, "feature count %d is outside the valid range [%d,%d] for %s",
			n, cfg.MinCount, cfg.MaxCount, cfg.Code)
	}
	if n >= cfg.TypicalMin && n <= cfg.TypicalMax {
		return accept(95)
	}
	r := accept(70)
	return warn(r, "unusual count: %d features is within [%d,%d] but outside the typical range [%d,%d] for %s",
		n, cfg.MinCount, cfg.MaxCount, cfg.TypicalMin, cfg.TypicalMax, cfg.Code)
}
