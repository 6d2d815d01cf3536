package validation

import (
	"fmt"

	"github.com/archstage/archstage/internal/model"
)

// Run is the built-in pipeline: structural rules every model must pass
// regardless of layer schemas. Schema-specific rules plug in as their
// own [Pipeline]; the staging core stays schema-agnostic.
func Run(view View, layers []string) []Finding {
	declared := make(map[string]struct{}, len(layers))
	for _, layer := range layers {
		declared[layer] = struct{}{}
	}

	var findings []Finding

	for _, element := range view.Elements() {
		findings = append(findings, checkElement(view, declared, element)...)
	}

	return findings
}

func checkElement(view View, declared map[string]struct{}, element *model.Element) []Finding {
	var findings []Finding

	fail := func(message string) {
		findings = append(findings, Finding{
			Severity:  SeverityError,
			Layer:     element.Layer,
			ElementID: element.ID,
			Message:   message,
		})
	}

	if err := element.Validate(); err != nil {
		fail(err.Error())

		return findings
	}

	if _, ok := declared[element.Layer]; !ok {
		fail(fmt.Sprintf("layer %q is not declared in the manifest", element.Layer))
	}

	for _, ref := range element.References {
		if ref.Predicate == "" {
			fail(fmt.Sprintf("reference to %s has no predicate", ref.Target))

			continue
		}

		if ref.Target == element.ID {
			fail("element references itself")

			continue
		}

		if !view.HasElement(ref.Target) {
			fail(fmt.Sprintf("reference %q targets unknown element %s", ref.Predicate, ref.Target))
		}
	}

	if element.Description == "" {
		findings = append(findings, Finding{
			Severity:  SeverityWarning,
			Layer:     element.Layer,
			ElementID: element.ID,
			Message:   "element has no description",
		})
	}

	return findings
}
