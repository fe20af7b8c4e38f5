package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTypicalRange(t *testing.T) {
	v := NewCountValidator()
	r := v.Validate(namedCollection(repeatNames("District", 9)...), councilConfig(t))
	assert.True(t, r.Valid)
	assert.GreaterOrEqual(t, r.Confidence, 90)
	assert.Empty(t, r.Warnings)
}

func TestCountUnusualButValid(t *testing.T) {
	// 25 council districts: inside [3,100], outside the typical [4,15].
	v := NewCountValidator()
	r := v.Validate(namedCollection(repeatNames("District", 25)...), councilConfig(t))
	assert.True(t, r.Valid)
	assert.GreaterOrEqual(t, r.Confidence, EscalateLow)
	assert.Less(t, r.Confidence, AutoAcceptAt)
	assert.NotEmpty(t, r.Warnings)
	assert.Contains(t, r.Warnings[0], "unusual count")
}

func TestCountOutsideHardRange(t *testing.T) {
	v := NewCountValidator()

	r := v.Validate(namedCollection(repeatNames("X", 2)...), councilConfig(t))
	assert.False(t, r.Valid)
	assert.Less(t, r.Confidence, AutoRejectBelow)

	r = v.Validate(namedCollection(repeatNames("X", 5235)...), councilConfig(t))
	assert.False(t, r.Valid)
	assert.Less(t, r.Confidence, AutoRejectBelow)
	assert.Contains(t, r.Issues[0], "outside the valid range")
}

func TestCountEmptyCollection(t *testing.T) {
	v := NewCountValidator()
	r := v.Validate(namedCollection(), councilConfig(t))
	assert.False(t, r.Valid)
	assert.Equal(t, 0, r.Confidence)
}

func TestCountBoundaryValues(t *testing.T) {
	v := NewCountValidator()
	cfg := councilConfig(t)

	// Exactly at the hard minimum: valid, but below typical.
	r := v.Validate(namedCollection(repeatNames("D", cfg.MinCount)...), cfg)
	assert.True(t, r.Valid)

	// Exactly at the typical bounds: full confidence.
	r = v.Validate(namedCollection(repeatNames("D", cfg.TypicalMin)...), cfg)
	assert.GreaterOrEqual(t, r.Confidence, 90)
	r = v.Validate(namedCollection(repeatNames("D", cfg.TypicalMax)...), cfg)
	assert.GreaterOrEqual(t, r.Confidence, 90)
}
