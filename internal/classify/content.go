package classify

import "github.com/raaihank/pii-sentinel/internal/patterns"

// ValueSource exposes sampled values by column name.
type ValueSource interface {
	Values(column string) []any
}

// ClassifyByContent tests the sampled values of ref.Column against content
// patterns in order. A pattern matches when any non-null value contains a
// match; the first matching pattern wins. Returns nil when nothing matches
// or the column has no non-null values.
func ClassifyByContent(ref ColumnRef, src ValueSource, contentPatterns []patterns.ContentPattern) *Finding {
	if src == nil {
		return nil
	}

	values := src.Values(ref.Column)
	texts := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := Text(v); ok {
			texts = append(texts, s)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	for _, cp := range contentPatterns {
		for _, s := range texts {
			if !cp.Match(s) {
				continue
			}
			return &Finding{
				ColumnRef:   ref,
				PiiName:     cp.Name,
				PiiCategory: cp.Category,
				Country:     cp.Country,
				CountryCode: cp.CountryCode,
				Pattern:     cp.Pattern,
				MatchedVia:  ContentRule,
			}
		}
	}
	return nil
}
