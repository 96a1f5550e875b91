package catalog

import "strings"

// NameFilter is an allow-list plus deny-list of object names. Matching is
// case-insensitive. An entry may be qualified as schema.name.
type NameFilter struct {
	include map[string]struct{}
	exclude map[string]struct{}
}

// NewNameFilter builds a filter. An empty include list allows everything.
func NewNameFilter(include, exclude []string) NameFilter {
	return NameFilter{include: toSet(include), exclude: toSet(exclude)}
}

// Active reports whether an allow-list was requested.
func (f NameFilter) Active() bool {
	return len(f.include) > 0
}

// Allows reports whether name (optionally qualified by schema) passes.
func (f NameFilter) Allows(schema, name string) bool {
	if f.contains(f.exclude, schema, name) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return f.contains(f.include, schema, name)
}

// Missing returns requested allow-list entries not present in seen.
func (f NameFilter) Missing(seen func(entry string) bool) []string {
	var missing []string
	for entry := range f.include {
		if !seen(entry) {
			missing = append(missing, entry)
		}
	}
	return missing
}

func (f NameFilter) contains(set map[string]struct{}, schema, name string) bool {
	if len(set) == 0 {
		return false
	}
	if _, ok := set[strings.ToLower(name)]; ok {
		return true
	}
	if schema == "" {
		return false
	}
	_, ok := set[strings.ToLower(schema+"."+name)]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		v = strings.NewReplacer("[", "", "]", "", `"`, "", "`", "").Replace(v)
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
