// Package levels defines the administrative-level configuration that
// parameterizes every validator: feature-count ranges, red-flag and
// green-flag keyword taxonomies, and cross-level keyword permissions.
//
// Configurations are loaded once (built-in defaults, optionally overridden
// from YAML profiles) and treated as immutable data; classification is a
// pure function over (text, level config).
package levels

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Code tags an administrative level.
type Code string

const (
	CouncilDistrict       Code = "council-district"
	CountyCommission      Code = "county-commission"
	StateLegislativeLower Code = "state-legislative-lower"
	StateLegislativeUpper Code = "state-legislative-upper"
	SchoolBoard           Code = "school-board"
	CountySubdivision     Code = "cousub"
	Place                 Code = "place"
)

// KeywordSet is a named red-flag category: any word-boundary match against a
// boundary name rejects the dataset (unless the level permits the category).
type KeywordSet struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Config holds the level-specific thresholds and taxonomies.
type Config struct {
	Code Code `yaml:"code"`

	// Hard feature-count range. Outside it the count validator rejects.
	MinCount int `yaml:"min_count"`
	MaxCount int `yaml:"max_count"`

	// Typical sub-range; counts inside it score ≥90, counts between the
	// hard and typical ranges land in the unusual-count band.
	TypicalMin int `yaml:"typical_min"`
	TypicalMax int `yaml:"typical_max"`

	// Red-flag keyword categories rejected at this level.
	RedFlags []KeywordSet `yaml:"red_flags"`

	// Green-flag regex patterns: canonical governance naming that boosts
	// confidence into the auto-accept band.
	GreenPatterns []string `yaml:"green_patterns"`

	// Cross-level keyword permissions. County keywords are level-aware, not
	// globally banned; same for state-legislative terms.
	AllowCountyTerms      bool `yaml:"allow_county_terms"`
	AllowLegislativeTerms bool `yaml:"allow_legislative_terms"`
}

// Shared red-flag categories. Transit/infrastructure terms are rejected at
// every level; legislative and county terms only where the level forbids
// them.
var (
	transitFlags = KeywordSet{
		Category: "transit",
		Keywords: []string{"stop", "station", "route", "platform", "transit", "bus", "rail"},
	}
	parcelFlags = KeywordSet{
		Category: "parcel-infrastructure",
		Keywords: []string{"parcel", "lot", "zoning", "easement", "development", "subdivision plat"},
	}
	legislativeFlags = KeywordSet{
		Category: "state-legislative",
		Keywords: []string{"senate", "assembly", "legislative", "house district"},
	}
	countyFlags = KeywordSet{
		Category: "county-commission",
		Keywords: []string{"county", "commissioner precinct", "supervisorial"},
	}
)

// Defaults returns the built-in configuration table, keyed by level code.
// The returned map and its contents must be treated as read-only.
func Defaults() map[Code]Config {
	return map[Code]Config{
		CouncilDistrict: {
			Code:       CouncilDistrict,
			MinCount:   3,
			MaxCount:   100,
			TypicalMin: 4,
			TypicalMax: 15,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags, legislativeFlags, countyFlags},
			GreenPatterns: []string{
				`^council district \d+$`,
				`^(city )?council district [a-z]$`,
				`^district \d+$`,
				`^ward \d+$`,
				`^district [a-z]$`,
			},
		},
		CountyCommission: {
			Code:       CountyCommission,
			MinCount:   3,
			MaxCount:   25,
			TypicalMin: 3,
			TypicalMax: 9,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags, legislativeFlags},
			GreenPatterns: []string{
				`^(county )?commission(er)? (district|precinct) \d+$`,
				`^district \d+$`,
				`^supervisorial district \d+$`,
			},
			AllowCountyTerms: true,
		},
		StateLegislativeLower: {
			Code:       StateLegislativeLower,
			MinCount:   20,
			MaxCount:   204,
			TypicalMin: 40,
			TypicalMax: 150,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags},
			GreenPatterns: []string{
				`^(house|assembly|legislative) district \d+$`,
				`^district \d+$`,
			},
			AllowLegislativeTerms: true,
			AllowCountyTerms:      true,
		},
		StateLegislativeUpper: {
			Code:       StateLegislativeUpper,
			MinCount:   10,
			MaxCount:   67,
			TypicalMin: 20,
			TypicalMax: 50,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags},
			GreenPatterns: []string{
				`^senate district \d+$`,
				`^district \d+$`,
			},
			AllowLegislativeTerms: true,
			AllowCountyTerms:      true,
		},
		SchoolBoard: {
			Code:       SchoolBoard,
			MinCount:   3,
			MaxCount:   15,
			TypicalMin: 5,
			TypicalMax: 9,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags, legislativeFlags, countyFlags},
			GreenPatterns: []string{
				`^(school board |trustee )?(district|zone|area) \d+$`,
			},
		},
		CountySubdivision: {
			Code:       CountySubdivision,
			MinCount:   1,
			MaxCount:   1500,
			TypicalMin: 5,
			TypicalMax: 600,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags},
			GreenPatterns: []string{
				`(town|township|borough|city) of `,
			},
			AllowCountyTerms:      true,
			AllowLegislativeTerms: false,
		},
		Place: {
			Code:       Place,
			MinCount:   1,
			MaxCount:   2000,
			TypicalMin: 10,
			TypicalMax: 1000,
			RedFlags:   []KeywordSet{transitFlags, parcelFlags},
			GreenPatterns: []string{
				`(city|town|village) of `,
			},
			AllowCountyTerms: true,
		},
	}
}

// ActiveRedFlags filters the level's red-flag categories by its cross-level
// permissions.
func (c Config) ActiveRedFlags() []KeywordSet {
	var out []KeywordSet
	for _, set := range c.RedFlags {
		if set.Category == legislativeFlags.Category && c.AllowLegislativeTerms {
			continue
		}
		if set.Category == countyFlags.Category && c.AllowCountyTerms {
			continue
		}
		out = append(out, set)
	}
	return out
}

// LoadProfile reads a level profile override from
// <dir>/level_<code>.yaml, merged over the built-in default.
func LoadProfile(dir string, code Code) (Config, error) {
	base, ok := Defaults()[code]
	if !ok {
		return Config{}, fmt.Errorf("unknown administrative level %q", code)
	}

	name := strings.ReplaceAll(string(code), "/", "_")
	path := filepath.Join(dir, fmt.Sprintf("level_%s.yaml", name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Config{}, fmt.Errorf("load level profile %q: %w", code, err)
	}

	override := base
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, fmt.Errorf("parse level profile %q: %w", code, err)
	}
	override.Code = code
	return override, nil
}
