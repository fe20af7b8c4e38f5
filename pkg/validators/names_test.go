package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/levels"
)

func councilConfig(t *testing.T) levels.Config {
	t.Helper()
	cfg, ok := levels.Defaults()[levels.CouncilDistrict]
	require.True(t, ok)
	return cfg
}

func TestNamesRejectTransitData(t *testing.T) {
	v := NewNameValidator()
	fc := namedCollection("Bus Stop 1", "Bus Stop 2", "Bus Stop 3", "Bus Stop 4")

	r := v.Validate(fc, councilConfig(t))
	assert.False(t, r.Valid)
	assert.Less(t, r.Confidence, AutoRejectBelow)
	require.NotEmpty(t, r.Issues)
	assert.Contains(t, r.Issues[0], "transit")
}

func TestNamesRejectParcelData(t *testing.T) {
	v := NewNameValidator()
	fc := namedCollection("Parcel 100-A", "Parcel 100-B", "Parcel 101")

	r := v.Validate(fc, councilConfig(t))
	assert.False(t, r.Valid)
	assert.Contains(t, r.Issues[0], "parcel-infrastructure")
}

func TestNamesWordBoundaryMatching(t *testing.T) {
	// "lot" inside "Charlotte" must not fire the parcel red flag.
	v := NewNameValidator()
	fc := namedCollection("Charlotte District 1", "Charlotte District 2", "Charlotte District 3")

	r := v.Validate(fc, councilConfig(t))
	assert.True(t, r.Valid)
}

func TestNamesCanonicalMajorityAutoAccepts(t *testing.T) {
	v := NewNameValidator()
	fc := namedCollection(repeatNames("Council District", 9)...)

	r := v.Validate(fc, councilConfig(t))
	assert.True(t, r.Valid)
	assert.GreaterOrEqual(t, r.Confidence, AutoAcceptAt)
	assert.Empty(t, r.Issues)
}

func TestNamesNonCanonicalLandsInReviewBand(t *testing.T) {
	v := NewNameValidator()
	fc := namedCollection("Alder Precinct", "Burnside Precinct", "Couch Precinct", "Davis Precinct")

	r := v.Validate(fc, councilConfig(t))
	assert.True(t, r.Valid)
	assert.GreaterOrEqual(t, r.Confidence, EscalateLow)
	assert.Less(t, r.Confidence, AutoAcceptAt)
	assert.NotEmpty(t, r.Warnings)
}

func TestNamesAllMissingWithPlausibleCount(t *testing.T) {
	v := NewNameValidator()
	fc := namedCollection("", "", "", "", "")

	r := v.Validate(fc, councilConfig(t))
	assert.True(t, r.Valid)
	assert.Equal(t, 50, r.Confidence)
	assert.NotEmpty(t, r.Warnings)
}

func TestNamesAllMissingWithImplausibleCount(t *testing.T) {
	v := NewNameValidator()
	names := make([]string, 500)
	fc := namedCollection(names...)

	r := v.Validate(fc, councilConfig(t))
	assert.False(t, r.Valid)
	assert.Less(t, r.Confidence, AutoRejectBelow)
}

func TestNamesEmptyCollection(t *testing.T) {
	v := NewNameValidator()
	r := v.Validate(namedCollection(), councilConfig(t))
	assert.False(t, r.Valid)
	assert.Equal(t, 0, r.Confidence)
}

func TestNamesLegislativeTermsAllowedForStateLayers(t *testing.T) {
	v := NewNameValidator()
	lower, ok := levels.Defaults()[levels.StateLegislativeLower]
	require.True(t, ok)

	names := repeatNames("House District", 60)
	fc := namedCollection(names...)
	r := v.Validate(fc, lower)
	assert.True(t, r.Valid, "legislative terms are canonical at the state-legislative level")
	assert.GreaterOrEqual(t, r.Confidence, AutoAcceptAt)

	// The same names at the council level hit the state-legislative red flag.
	r = v.Validate(fc, councilConfig(t))
	assert.False(t, r.Valid)
}

func TestNameOfPropertyPriority(t *testing.T) {
	f := geometry.Feature{
		Properties: map[string]any{
			"DISTRICT": "9",
			"NAME":     "Council District 9",
		},
	}
	assert.Equal(t, "Council District 9", NameOf(&f))

	f = geometry.Feature{Properties: map[string]any{"DISTRICT": float64(4)}}
	assert.Equal(t, "4", NameOf(&f))

	f = geometry.Feature{Name: "Explicit"}
	assert.Equal(t, "Explicit", NameOf(&f))
}

func TestNamesUnicodeNormalization(t *testing.T) {
	// Decomposed "Distrito Número 1" should not crash matching and
	// normalizes the same as the composed form.
	v := NewNameValidator()
	fc := namedCollection("Distrito Número 1", "Distrito Número 2", "Distrito 3")
	r := v.Validate(fc, councilConfig(t))
	assert.True(t, r.Valid)
}
