package patterns

import "strings"

// Filter returns a new rule set restricted to the requested countries and
// country codes. Untagged rules are always kept. With both filters empty the
// result holds every rule of rs.
func Filter(rs *RuleSet, countries, countryCodes []string) *RuleSet {
	if len(countries) == 0 && len(countryCodes) == 0 {
		return &RuleSet{
			knownTypes:      rs.KnownTypes(),
			contentPatterns: rs.ContentPatterns(),
		}
	}

	byCountry := toSet(countries)
	byCode := toSet(countryCodes)

	out := &RuleSet{}
	for _, kt := range rs.knownTypes {
		if keep(kt.Country, kt.CountryCode, byCountry, byCode) {
			out.knownTypes = append(out.knownTypes, kt)
		}
	}
	for _, cp := range rs.contentPatterns {
		if keep(cp.Country, cp.CountryCode, byCountry, byCode) {
			out.contentPatterns = append(out.contentPatterns, cp)
		}
	}
	return out
}

func keep(country, code string, byCountry, byCode map[string]struct{}) bool {
	if country == "" && code == "" {
		return true
	}
	if _, ok := byCountry[strings.ToLower(country)]; ok && country != "" {
		return true
	}
	if _, ok := byCode[strings.ToLower(code)]; ok && code != "" {
		return true
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[strings.ToLower(v)] = struct{}{}
		}
	}
	return set
}
