package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

var (
	errElementIDRequired = errors.New("element id is required")
	errBadProperty       = errors.New("property must be key=value")
	errBadReference      = errors.New("reference must be predicate=target")
)

// ElementAddCmd returns the element add command.
func ElementAddCmd(app *App) *Command {
	fs := flag.NewFlagSet("element add", flag.ContinueOnError)
	fs.StringP("name", "n", "", "Display name (defaults to the id's name part)")
	fs.StringP("description", "d", "", "Description text")
	fs.StringArrayP("prop", "p", nil, "Property key=value (repeatable)")
	fs.StringArray("ref", nil, "Typed reference predicate=target (repeatable)")

	return &Command{
		Flags: fs,
		Usage: "element add <id> [flags]",
		Short: "Add an element, staged when a changeset is active",
		Long: `Add an element. The id must be layer.type.name, for example
business.service.checkout. With an active changeset the add is staged;
otherwise it is written directly to the model.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execElementAdd(o, app, fs, args)
		},
	}
}

func execElementAdd(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}

	props, err := parseProps(fs)
	if err != nil {
		return err
	}

	refs, err := parseRefs(fs)
	if err != nil {
		return err
	}

	handler, err := app.Mutations()
	if err != nil {
		return err
	}

	rec, staged, err := handler.Add(id, func(el *model.Element) error {
		if name, _ := fs.GetString("name"); name != "" {
			el.Name = name
		}

		el.Description, _ = fs.GetString("description")
		el.Properties = props
		el.References = refs

		return nil
	})
	if err != nil {
		return err
	}

	printMutationResult(o, rec, staged)

	return nil
}

// ElementUpdateCmd returns the element update command.
func ElementUpdateCmd(app *App) *Command {
	fs := flag.NewFlagSet("element update", flag.ContinueOnError)
	fs.StringP("name", "n", "", "Display name")
	fs.StringP("description", "d", "", "Description text")
	fs.StringArrayP("prop", "p", nil, "Property key=value to set (repeatable)")
	fs.StringArray("unset-prop", nil, "Property key to remove (repeatable)")
	fs.StringArray("ref", nil, "Typed reference predicate=target to set (repeatable)")
	fs.StringArray("unset-ref", nil, "Reference predicate=target to remove (repeatable)")

	return &Command{
		Flags: fs,
		Usage: "element update <id> [flags]",
		Short: "Update an element, staged when a changeset is active",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execElementUpdate(o, app, fs, args)
		},
	}
}

func execElementUpdate(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}

	props, err := parseProps(fs)
	if err != nil {
		return err
	}

	refs, err := parseRefs(fs)
	if err != nil {
		return err
	}

	unsetRefs, err := parsePairs(fs, "unset-ref", errBadReference)
	if err != nil {
		return err
	}

	unsetProps, _ := fs.GetStringArray("unset-prop")

	handler, err := app.Mutations()
	if err != nil {
		return err
	}

	rec, staged, err := handler.Update(id, func(el *model.Element) error {
		if fs.Changed("name") {
			el.Name, _ = fs.GetString("name")
		}

		if fs.Changed("description") {
			el.Description, _ = fs.GetString("description")
		}

		for k, v := range props {
			if el.Properties == nil {
				el.Properties = make(map[string]string)
			}

			el.Properties[k] = v
		}

		for _, k := range unsetProps {
			delete(el.Properties, k)
		}

		el.References = mergeRefs(el.References, refs, unsetRefs)

		return nil
	})
	if err != nil {
		return err
	}

	printMutationResult(o, rec, staged)

	return nil
}

// ElementRemoveCmd returns the element remove command.
func ElementRemoveCmd(app *App) *Command {
	fs := flag.NewFlagSet("element remove", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "element remove <id>",
		Short: "Remove an element, staged when a changeset is active",
		Long: `Remove an element and every edge touching it. With an active
changeset the delete is staged; otherwise it is applied directly.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			id, err := positionalID(args)
			if err != nil {
				return err
			}

			handler, err := app.Mutations()
			if err != nil {
				return err
			}

			rec, staged, err := handler.Delete(id)
			if err != nil {
				return err
			}

			printMutationResult(o, rec, staged)

			return nil
		},
	}
}

// ElementShowCmd returns the element show command.
func ElementShowCmd(app *App) *Command {
	fs := flag.NewFlagSet("element show", flag.ContinueOnError)
	fs.Bool("base", false, "Show the base model state, ignoring the active changeset")

	return &Command{
		Flags: fs,
		Usage: "element show <id> [flags]",
		Short: "Show one element with its edges",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execElementShow(o, app, fs, args)
		},
	}
}

func execElementShow(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}

	view, err := effectiveView(app, fs)
	if err != nil {
		return err
	}

	element := view.Element(id)
	if element == nil {
		return fmt.Errorf("%w: %s", model.ErrElementNotFound, id)
	}

	printElement(o, element)

	for _, edge := range view.Edges() {
		if edge.Source != id && edge.Target != id {
			continue
		}

		marker := "link"
		if edge.Derived {
			marker = "ref"
		}

		o.Printf("  edge: %s -[%s]-> %s (%s)\n", edge.Source, edge.Predicate, edge.Target, marker)
	}

	return nil
}

// ElementLsCmd returns the element ls command.
func ElementLsCmd(app *App) *Command {
	fs := flag.NewFlagSet("element ls", flag.ContinueOnError)
	fs.StringP("layer", "l", "", "Only elements in this layer")
	fs.StringP("type", "t", "", "Only elements of this type")
	fs.Bool("base", false, "List the base model state, ignoring the active changeset")

	return &Command{
		Flags: fs,
		Usage: "element ls [flags]",
		Short: "List elements",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execElementLs(o, app, fs)
		},
	}
}

func execElementLs(o *IO, app *App, fs *flag.FlagSet) error {
	view, err := effectiveView(app, fs)
	if err != nil {
		return err
	}

	layer, _ := fs.GetString("layer")
	typ, _ := fs.GetString("type")

	var elements []*model.Element
	if layer != "" {
		elements = view.ElementsByLayer(layer)
	} else {
		elements = view.Elements()
	}

	for _, el := range elements {
		if typ != "" && el.Type != typ {
			continue
		}

		o.Printf("%-50s %s\n", el.ID, el.Name)
	}

	return nil
}

// elementView is the read surface shared by the base graph and a
// changeset projection.
type elementView interface {
	Element(id string) *model.Element
	Elements() []*model.Element
	ElementsByLayer(layer string) []*model.Element
	Edges() []model.Edge
}

// effectiveView returns the projection of the active changeset, or the
// base graph when none is active or --base was passed.
func effectiveView(app *App, fs *flag.FlagSet) (elementView, error) {
	m, err := app.Model()
	if err != nil {
		return nil, err
	}

	if base, _ := fs.GetBool("base"); base {
		return m.Graph, nil
	}

	mgr, err := app.Manager()
	if err != nil {
		return nil, err
	}

	cs, err := mgr.Active()
	if err != nil {
		return nil, err
	}

	if cs == nil {
		return m.Graph, nil
	}

	return staging.Project(m.Graph, cs.Changes)
}

func positionalID(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errElementIDRequired
	}

	return args[0], nil
}

func parseProps(fs *flag.FlagSet) (map[string]string, error) {
	raw, _ := fs.GetStringArray("prop")
	if len(raw) == 0 {
		return nil, nil
	}

	props := make(map[string]string, len(raw))

	for _, pair := range raw {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", errBadProperty, pair)
		}

		props[k] = v
	}

	return props, nil
}

func parseRefs(fs *flag.FlagSet) ([]model.Reference, error) {
	return parsePairs(fs, "ref", errBadReference)
}

func parsePairs(fs *flag.FlagSet, name string, badErr error) ([]model.Reference, error) {
	raw, _ := fs.GetStringArray(name)
	if len(raw) == 0 {
		return nil, nil
	}

	refs := make([]model.Reference, 0, len(raw))

	for _, pair := range raw {
		predicate, target, ok := strings.Cut(pair, "=")
		if !ok || predicate == "" || target == "" {
			return nil, fmt.Errorf("%w: %q", badErr, pair)
		}

		refs = append(refs, model.Reference{Predicate: predicate, Target: target})
	}

	return refs, nil
}

// mergeRefs sets the given references (replacing same predicate+target)
// and removes the unset ones, keeping the result sorted.
func mergeRefs(current, set, unset []model.Reference) []model.Reference {
	keep := make(map[model.Reference]struct{}, len(current)+len(set))

	for _, ref := range current {
		keep[ref] = struct{}{}
	}

	for _, ref := range set {
		keep[ref] = struct{}{}
	}

	for _, ref := range unset {
		delete(keep, ref)
	}

	out := make([]model.Reference, 0, len(keep))
	for ref := range keep {
		out = append(out, ref)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Predicate != out[j].Predicate {
			return out[i].Predicate < out[j].Predicate
		}

		return out[i].Target < out[j].Target
	})

	return out
}

func printMutationResult(o *IO, rec *staging.ChangeRecord, staged bool) {
	if staged {
		o.Printf("staged %s %s (seq %d)\n", rec.Op, rec.ElementID, rec.Seq)

		return
	}

	o.Printf("%s %s\n", pastTense(rec.Op), rec.ElementID)
}

func pastTense(op string) string {
	switch op {
	case staging.OpAdd:
		return "added"
	case staging.OpUpdate:
		return "updated"
	case staging.OpDelete:
		return "removed"
	default:
		return op
	}
}

func printElement(o *IO, el *model.Element) {
	o.Println("id:         ", el.ID)
	o.Println("layer:      ", el.Layer)
	o.Println("type:       ", el.Type)
	o.Println("name:       ", el.Name)

	if el.Description != "" {
		o.Println("description:", el.Description)
	}

	if len(el.Properties) > 0 {
		keys := make([]string, 0, len(el.Properties))
		for k := range el.Properties {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		o.Println("properties:")

		for _, k := range keys {
			o.Printf("  %s = %s\n", k, el.Properties[k])
		}
	}

	if len(el.References) > 0 {
		o.Println("references:")

		for _, ref := range el.References {
			o.Printf("  %s -> %s\n", ref.Predicate, ref.Target)
		}
	}
}
