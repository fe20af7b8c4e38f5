package governance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]Record{
		{
			JurisdictionID:      "portland-or",
			Structure:           DistrictBased,
			ShouldAttemptLayer1: true,
			ExpectedSeats:       12,
			Source:              "2022 charter reform, effective 2024",
			LastVerified:        "2025-01-15",
		},
		{
			JurisdictionID:      "cambridge-ma",
			Structure:           AtLarge,
			ShouldAttemptLayer1: false,
			Source:              "city charter, Plan E",
			LastVerified:        "2025-01-15",
		},
	})
	require.NoError(t, err)
	return reg
}

func TestCheckGovernanceKnownJurisdictions(t *testing.T) {
	reg := testRegistry(t)

	rec := reg.CheckGovernance("portland-or")
	assert.Equal(t, DistrictBased, rec.Structure)
	assert.True(t, rec.ShouldAttemptLayer1)
	assert.Equal(t, 12, rec.ExpectedSeats)

	rec = reg.CheckGovernance("cambridge-ma")
	assert.Equal(t, AtLarge, rec.Structure)
	assert.False(t, rec.ShouldAttemptLayer1)
}

func TestCheckGovernanceUnknownFailsOpen(t *testing.T) {
	// Zero-false-positive contract: absence from the registry must never
	// skip discovery.
	reg := testRegistry(t)
	rec := reg.CheckGovernance("nowhere-zz")
	assert.Equal(t, Unknown, rec.Structure)
	assert.True(t, rec.ShouldAttemptLayer1)
}

func TestCheckGovernanceNormalizesID(t *testing.T) {
	reg := testRegistry(t)
	rec := reg.CheckGovernance("  Portland-OR ")
	assert.Equal(t, DistrictBased, rec.Structure)
}

func TestValidateDiscoveredDistricts(t *testing.T) {
	reg := testRegistry(t)

	// At-large city with discovered districts: spurious data.
	check := reg.ValidateDiscoveredDistricts("cambridge-ma", 9)
	assert.False(t, check.Valid)
	assert.Contains(t, check.Reason, "at-large")

	// At-large city with zero districts: the expected outcome.
	check = reg.ValidateDiscoveredDistricts("cambridge-ma", 0)
	assert.True(t, check.Valid)

	// District-based city with the exact registered seat count.
	check = reg.ValidateDiscoveredDistricts("portland-or", 12)
	assert.True(t, check.Valid)
	assert.Equal(t, 12, check.ExpectedCount)

	// District-based city with a mismatched count.
	check = reg.ValidateDiscoveredDistricts("portland-or", 4)
	assert.False(t, check.Valid)
	assert.Equal(t, 12, check.ExpectedCount)
	assert.Equal(t, 4, check.DiscoveredCount)

	// Unregistered city: no basis to reject.
	check = reg.ValidateDiscoveredDistricts("nowhere-zz", 7)
	assert.True(t, check.Valid)
}

func TestExpectedSeats(t *testing.T) {
	reg := testRegistry(t)
	assert.Equal(t, 12, reg.ExpectedSeats("portland-or"))
	assert.Equal(t, 0, reg.ExpectedSeats("cambridge-ma"))
	assert.Equal(t, 0, reg.ExpectedSeats("nowhere-zz"))
}

func TestNewRegistryRejectsSkipWithoutAtLarge(t *testing.T) {
	_, err := NewRegistry([]Record{{
		JurisdictionID:      "springfield-il",
		Structure:           Unknown,
		ShouldAttemptLayer1: false,
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at-large confirmation")
}

func TestNewRegistryRejectsAtLargeWithoutSource(t *testing.T) {
	_, err := NewRegistry([]Record{{
		JurisdictionID:      "springfield-il",
		Structure:           AtLarge,
		ShouldAttemptLayer1: false,
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source citation")
}

func TestLoadRegistryValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governance.json")
	data := []byte(`[
		{"jurisdiction_id": "portland-or", "structure": "district-based",
		 "should_attempt_layer1": true, "expected_seats": 12,
		 "source": "charter reform", "last_verified": "2025-01-15"},
		{"jurisdiction_id": "cambridge-ma", "structure": "at-large",
		 "should_attempt_layer1": false, "source": "Plan E charter"}
	]`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 12, reg.ExpectedSeats("portland-or"))
}

func TestLoadRegistrySchemaRejectsMissingSeats(t *testing.T) {
	// district-based entries must declare expected_seats and source.
	path := filepath.Join(t.TempDir(), "governance.json")
	data := []byte(`[{"jurisdiction_id": "portland-or", "structure": "district-based"}]`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestLoadRegistrySchemaRejectsBadStructure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governance.json")
	data := []byte(`[{"jurisdiction_id": "x", "structure": "monarchy"}]`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err := LoadRegistry(path)
	assert.Error(t, err)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
