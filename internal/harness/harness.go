// Package harness runs detection heuristics over decoded diagnostic
// records and produces the rows written to analysis output files.
package harness

import (
	"fmt"

	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/diag"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event is one finding emitted by a single analyzer.
type Event struct {
	Analyzer string   `json:"analyzer"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Row is the harness output for one record container.
type Row struct {
	Events  []Event  `json:"events"`
	Skipped []string `json:"skipped,omitempty"`
}

// IsEmpty reports whether the row carries nothing worth recording.
func (r Row) IsEmpty() bool {
	return len(r.Events) == 0 && len(r.Skipped) == 0
}

// ContainsWarnings reports whether any event is a warning.
func (r Row) ContainsWarnings() bool {
	for _, e := range r.Events {
		if e.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// AnalyzerInfo describes one heuristic in the report metadata.
type AnalyzerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Metadata is the first record of every analysis file. It describes
// which heuristics produced the rows that follow.
type Metadata struct {
	Version   int            `json:"version"`
	Analyzers []AnalyzerInfo `json:"analyzers"`
}

// MetadataVersion is bumped when the row format changes.
const MetadataVersion = 1

// Analyzer is one detection heuristic. Analyze returns nil when the
// container is of no interest.
type Analyzer interface {
	Name() string
	Description() string
	Analyze(c diag.Container) *Event
}

// Harness owns a fixed set of analyzers and accumulates nothing
// between containers; all state lives in the emitted rows.
type Harness struct {
	analyzers []Analyzer
}

// New builds a harness from the analyzer toggles.
func New(cfg config.Analyzers) *Harness {
	var analyzers []Analyzer
	if cfg.IMSIRequest {
		analyzers = append(analyzers, imsiRequestAnalyzer{})
	}
	if cfg.NullCipher {
		analyzers = append(analyzers, nullCipherAnalyzer{})
	}
	return &Harness{analyzers: analyzers}
}

func (h *Harness) Metadata() Metadata {
	infos := make([]AnalyzerInfo, 0, len(h.analyzers))
	for _, a := range h.analyzers {
		infos = append(infos, AnalyzerInfo{
			Name:        a.Name(),
			Description: a.Description(),
		})
	}
	return Metadata{
		Version:   MetadataVersion,
		Analyzers: infos,
	}
}

// Analyze runs every analyzer over the container, producing zero or
// more rows. Undecodable records are reported via Row.Skipped rather
// than aborting the analysis.
func (h *Harness) Analyze(c diag.Container) []Row {
	var row Row
	if c.DataType == diag.DataTypeUserSpace && len(c.Payload) == 0 {
		row.Skipped = append(row.Skipped, "empty user-space record")
		return []Row{row}
	}
	for _, a := range h.analyzers {
		if e := a.Analyze(c); e != nil {
			row.Events = append(row.Events, *e)
		}
	}
	return []Row{row}
}

func warn(name, format string, args ...any) *Event {
	return &Event{
		Analyzer: name,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
	}
}
