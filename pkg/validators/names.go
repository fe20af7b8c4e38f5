package validators

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/levels"
)

// Candidate property keys for display names, checked in priority order.
// Numeric values are stringified; absent names are tolerated when the
// feature count is plausible.
var nameKeys = []string{
	"NAME", "name", "Name",
	"DISTRICT_NAME", "district_name", "DISTRICTNAME",
	"LABEL", "label",
	"NAMELSAD", "namelsad",
	"DISTRICT", "district",
}

// NameOf extracts a display name for a feature, or "" when none is present.
func NameOf(f *geometry.Feature) string {
	if f.Name != "" {
		return f.Name
	}
	for _, key := range nameKeys {
		v, ok := f.Properties[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return t
			}
		case float64:
			return fmt.Sprintf("%v", t)
		case int:
			return fmt.Sprintf("%d", t)
		}
	}
	return ""
}

// NameValidator scores the aggregate name set of a collection against the
// level's red-flag and green-flag taxonomies.
type NameValidator struct {
	mu       sync.Mutex
	redRe    map[string]*regexp.Regexp // keyword -> compiled word-boundary regex
	greenRe  map[string]*regexp.Regexp // pattern -> compiled regex
}

// NewNameValidator creates a validator with empty regex caches.
func NewNameValidator() *NameValidator {
	return &NameValidator{
		redRe:   make(map[string]*regexp.Regexp),
		greenRe: make(map[string]*regexp.Regexp),
	}
}

// Validate classifies the collection's names for the given level.
func (v *NameValidator) Validate(fc *geometry.FeatureCollection, cfg levels.Config) Result {
	if len(fc.Features) == 0 {
		return reject(0, "empty collection: no features to validate")
	}

	names := make([]string, 0, len(fc.Features))
	missing := 0
	for i := range fc.Features {
		name := NameOf(&fc.Features[i])
		if name == "" {
			missing++
			continue
		}
		names = append(names, normalizeName(name))
	}

	// All (or effectively all) names absent: recoverable through synthetic
	// naming when the count is plausible, not an automatic reject.
	if len(names) == 0 {
		if len(fc.Features) >= 3 && len(fc.Features) <= 100 {
			r := Result{Valid: true, Confidence: 50}
			return warn(r, "features carry no display names; synthetic naming will be applied (%d features)", len(fc.Features))
		}
		return reject(15, "features carry no display names and feature count %d is outside a recoverable range", len(fc.Features))
	}

	// Red flags first: a single applicable category match rejects.
	for _, set := range cfg.ActiveRedFlags() {
		matched, example := v.matchRed(names, set.Keywords)
		if matched > 0 {
			return reject(10, "%s keyword match in %d of %d names (e.g. %q): dataset is not %s data",
				set.Category, matched, len(names), example, cfg.Code)
		}
	}

	green := 0
	for _, name := range names {
		if v.matchGreen(name, cfg.GreenPatterns) {
			green++
		}
	}

	var r Result
	switch {
	case green*2 >= len(names): // majority canonical governance naming
		r = accept(90)
	default:
		r = accept(70)
		r = warn(r, "names do not match canonical %s naming (%d of %d matched); review recommended", cfg.Code, green, len(names))
	}
	if missing > 0 {
		r = warn(r, "%d of %d features lack display names", missing, len(fc.Features))
	}
	return r
}

// matchRed reports how many names contain any of the keywords on a word
// boundary, plus the first offending name. Substring matches on stems like
// "lot" must not fire inside unrelated words.
func (v *NameValidator) matchRed(names []string, keywords []string) (int, string) {
	count := 0
	example := ""
	for _, name := range names {
		for _, kw := range keywords {
			if v.redRegexp(kw).MatchString(name) {
				count++
				if example == "" {
					example = name
				}
				break
			}
		}
	}
	return count, example
}

func (v *NameValidator) matchGreen(name string, patterns []string) bool {
	for _, p := range patterns {
		if v.greenRegexp(p).MatchString(name) {
			return true
		}
	}
	return false
}

func (v *NameValidator) redRegexp(keyword string) *regexp.Regexp {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.redRe[keyword]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(keyword)) + `\b`)
	v.redRe[keyword] = re
	return re
}

func (v *NameValidator) greenRegexp(pattern string) *regexp.Regexp {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.greenRe[pattern]; ok {
		return re
	}
	re := regexp.MustCompile(pattern)
	v.greenRe[pattern] = re
	return re
}

// normalizeName lowercases and NFC-normalizes a display name so keyword
// matching behaves the same for composed and decomposed Unicode forms.
func normalizeName(name string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(name)))
}
