package results

import "github.com/raaihank/pii-sentinel/internal/classify"

// Aggregator keeps at most one finding per column, in the order the columns
// were recorded. It is not safe for concurrent use.
type Aggregator struct {
	seen     map[classify.ColumnRef]struct{}
	findings []classify.Finding
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[classify.ColumnRef]struct{})}
}

// Record inserts f and returns true, or returns false if its column already
// has a finding.
func (a *Aggregator) Record(f classify.Finding) bool {
	if _, ok := a.seen[f.ColumnRef]; ok {
		return false
	}
	a.seen[f.ColumnRef] = struct{}{}
	a.findings = append(a.findings, f)
	return true
}

// Has reports whether ref already has a finding.
func (a *Aggregator) Has(ref classify.ColumnRef) bool {
	_, ok := a.seen[ref]
	return ok
}

// Len returns the number of findings.
func (a *Aggregator) Len() int {
	return len(a.findings)
}

// Report returns the findings in discovery order.
func (a *Aggregator) Report() []classify.Finding {
	return append([]classify.Finding(nil), a.findings...)
}
