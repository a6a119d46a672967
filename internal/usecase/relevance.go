package usecase

import (
	"fmt"

	"FundingScanner/internal/domain"
)

// relevantForTarget applies the deterministic geography rule. Precedence,
// strictest first:
//
//  1. explicit exclusion of the target country disqualifies;
//  2. explicit inclusion qualifies, whatever else is listed;
//  3. an eligible list naming any location outside the general-scope
//     allow-list disqualifies — a specific country list that omits the
//     target implicitly excludes it, even when a broad scope is also listed;
//  4. a remaining general scope qualifies;
//  5. no recognized locations at all disqualifies.
func relevantForTarget(geo domain.GeoScope, target string, generalScopes map[string]struct{}) (bool, string) {
	eligible := make([]string, 0, len(geo.Eligible))
	for _, location := range geo.Eligible {
		eligible = append(eligible, normalizeLocation(location))
	}

	for _, location := range geo.Excluded {
		if normalizeLocation(location) == target {
			return false, fmt.Sprintf("explicitly excludes %s", target)
		}
	}

	for _, location := range eligible {
		if location == target {
			return true, fmt.Sprintf("explicitly includes %s", target)
		}
	}

	var specific, general []string
	for _, location := range eligible {
		if _, ok := generalScopes[location]; ok {
			general = append(general, location)
		} else {
			specific = append(specific, location)
		}
	}

	if len(specific) > 0 {
		return false, fmt.Sprintf("specific country list does not include %s: %v", target, specific)
	}
	if len(general) > 0 {
		return true, fmt.Sprintf("includes a relevant general scope: %v", general)
	}

	return false, fmt.Sprintf("no relevant geographic scope found, raw eligible: %v", eligible)
}
