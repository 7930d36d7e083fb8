// Package metrics counts filesystem operations. The filesystem records into a
// Collector; NopCollector is used when metrics are disabled.
package metrics

// Collector receives one record per completed filesystem operation
type Collector interface {
	// RecordOp counts op with a result label derived from err (nil is "ok")
	RecordOp(op string, err error)

	// SetOpenSessions reports the number of live descriptor table entries
	SetOpenSessions(n int)
}

// NopCollector drops every record
type NopCollector struct{}

func (NopCollector) RecordOp(string, error) {}

func (NopCollector) SetOpenSessions(int) {}

var _ Collector = NopCollector{}
