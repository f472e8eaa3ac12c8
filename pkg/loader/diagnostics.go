package loader

import (
	"fmt"
	"strings"
)

// DiagnosticKind classifies a non-fatal anomaly found while resolving a
// table set.
type DiagnosticKind string

const (
	// KindMissingTables reports requested tables the source does not hold.
	KindMissingTables DiagnosticKind = "missing_tables"

	// KindUnknownConditionTables reports condition entries naming tables
	// outside the resolved table set.
	KindUnknownConditionTables DiagnosticKind = "unknown_condition_tables"
)

// Diagnostic is a non-fatal anomaly. The named tables were excluded from
// processing.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Tables []string       `json:"tables"`
}

// Message renders the diagnostic for humans.
func (d Diagnostic) Message() string {
	switch d.Kind {
	case KindMissingTables:
		return fmt.Sprintf("tables not found in source: %s", strings.Join(d.Tables, ", "))
	case KindUnknownConditionTables:
		return fmt.Sprintf("conditions ignored for tables outside the table set: %s", strings.Join(d.Tables, ", "))
	default:
		return fmt.Sprintf("%s: %s", d.Kind, strings.Join(d.Tables, ", "))
	}
}
