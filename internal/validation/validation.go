// Package validation defines the findings contract between commit and
// the validation pipeline, plus the built-in structural rules. Commit
// runs the pipeline against the projected state, so problems a changeset
// would introduce are caught before the base model is touched.
package validation

import (
	"fmt"

	"github.com/archstage/archstage/internal/model"
)

// Severity classifies a finding. Only [SeverityError] blocks commit.
type Severity string

// Severity levels.
const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Finding is one validation result tied to an element.
type Finding struct {
	Severity  Severity `json:"severity"`
	Layer     string   `json:"layer"`
	ElementID string   `json:"element_id"`
	Message   string   `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Severity, f.ElementID, f.Message)
}

// View is the read-only model state a pipeline inspects. Both the live
// graph and a changeset projection satisfy it.
type View interface {
	// Elements returns every element, sorted by ID.
	Elements() []*model.Element

	// HasElement reports whether an ID resolves in the view.
	HasElement(id string) bool
}

// Pipeline validates a projected view against the declared layer set.
// Implementations are replaceable; commit only cares about ERROR findings.
type Pipeline func(view View, layers []string) []Finding

// HasErrors reports whether any finding is ERROR severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}

	return false
}

// Errors returns only the ERROR-severity findings.
func Errors(findings []Finding) []Finding {
	var out []Finding

	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}

	return out
}
