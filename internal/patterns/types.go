package patterns

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// KnownType classifies a column as PII by its name.
type KnownType struct {
	Name        string      `json:"name" yaml:"name"`
	Category    string      `json:"category" yaml:"category"`
	Pattern     PatternList `json:"pattern" yaml:"pattern"`
	Country     string      `json:"country,omitempty" yaml:"country,omitempty"`
	CountryCode string      `json:"countryCode,omitempty" yaml:"countryCode,omitempty"`

	compiled []*regexp.Regexp
}

// Match returns the first of the type's patterns found anywhere in name.
func (k KnownType) Match(name string) (string, bool) {
	for i, re := range k.compiled {
		if re.MatchString(name) {
			return k.Pattern[i], true
		}
	}
	return "", false
}

// ContentPattern classifies a column as PII by its sampled values.
type ContentPattern struct {
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Country     string `json:"country,omitempty" yaml:"country,omitempty"`
	CountryCode string `json:"countryCode,omitempty" yaml:"countryCode,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	compiled *regexp.Regexp
}

// Match reports whether the pattern occurs anywhere in value.
func (c ContentPattern) Match(value string) bool {
	return c.compiled != nil && c.compiled.MatchString(value)
}

// PatternList accepts either a single pattern string or a list of them.
type PatternList []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PatternList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("pattern must be a string or a list of strings")
	}
	*p = PatternList{single}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PatternList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = PatternList{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: pattern must be a string or a list of strings", value.Line)
	}
}

// RuleSet is the immutable, ordered set of rules used by one scan.
type RuleSet struct {
	knownTypes      []KnownType
	contentPatterns []ContentPattern
}

// NewRuleSet compiles the given rules. Order is preserved and defines match
// priority.
func NewRuleSet(knownTypes []KnownType, contentPatterns []ContentPattern) (*RuleSet, error) {
	rs := &RuleSet{
		knownTypes:      make([]KnownType, 0, len(knownTypes)),
		contentPatterns: make([]ContentPattern, 0, len(contentPatterns)),
	}

	for i, kt := range knownTypes {
		if kt.Name == "" {
			return nil, fmt.Errorf("known type #%d has no name", i+1)
		}
		if len(kt.Pattern) == 0 {
			return nil, fmt.Errorf("known type %q has no pattern", kt.Name)
		}
		kt.compiled = make([]*regexp.Regexp, 0, len(kt.Pattern))
		for _, p := range kt.Pattern {
			re, err := compile(p)
			if err != nil {
				return nil, fmt.Errorf("known type %q: %w", kt.Name, err)
			}
			kt.compiled = append(kt.compiled, re)
		}
		rs.knownTypes = append(rs.knownTypes, kt)
	}

	for i, cp := range contentPatterns {
		if cp.Name == "" {
			return nil, fmt.Errorf("content pattern #%d has no name", i+1)
		}
		if cp.Pattern == "" {
			return nil, fmt.Errorf("content pattern %q has no pattern", cp.Name)
		}
		re, err := compile(cp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("content pattern %q: %w", cp.Name, err)
		}
		cp.compiled = re
		rs.contentPatterns = append(rs.contentPatterns, cp)
	}

	return rs, nil
}

// KnownTypes returns the name rules in priority order.
func (rs *RuleSet) KnownTypes() []KnownType {
	return append([]KnownType(nil), rs.knownTypes...)
}

// ContentPatterns returns the value rules in priority order.
func (rs *RuleSet) ContentPatterns() []ContentPattern {
	return append([]ContentPattern(nil), rs.contentPatterns...)
}

// Empty reports whether the set holds no rules at all.
func (rs *RuleSet) Empty() bool {
	return len(rs.knownTypes) == 0 && len(rs.contentPatterns) == 0
}

// compile builds a case-insensitive regexp for pattern.
func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}
