package classify

import "github.com/raaihank/pii-sentinel/internal/patterns"

// ClassifyByName tests the column name against known types in order and
// returns the first match, or nil.
func ClassifyByName(ref ColumnRef, knownTypes []patterns.KnownType) *Finding {
	for _, kt := range knownTypes {
		pattern, ok := kt.Match(ref.Column)
		if !ok {
			continue
		}
		return &Finding{
			ColumnRef:   ref,
			PiiName:     kt.Name,
			PiiCategory: kt.Category,
			Country:     kt.Country,
			CountryCode: kt.CountryCode,
			Pattern:     pattern,
			MatchedVia:  NameRule,
		}
	}
	return nil
}
