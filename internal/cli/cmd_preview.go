package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/staging"
	"github.com/archstage/archstage/internal/validation"
	"github.com/google/go-cmp/cmp"
)

// PreviewCmd returns the preview command.
func PreviewCmd(app *App) *Command {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.StringP("layer", "l", "", "Only elements in this layer")
	fs.Bool("check", false, "Also run validation over the projected state")

	return &Command{
		Flags: fs,
		Usage: "preview [id] [flags]",
		Short: "Show the model as it would look after commit",
		Long: `Project a changeset's staged changes over the current base and list
the resulting elements. The base model is not modified. Defaults to the
active changeset.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execPreview(o, app, fs, args)
		},
	}
}

func execPreview(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	cs, err := resolveChangeset(mgr, args)
	if err != nil {
		return err
	}

	_, proj, err := mgr.Preview(cs.ID)
	if err != nil {
		return err
	}

	layer, _ := fs.GetString("layer")

	elements := proj.Elements()
	if layer != "" {
		elements = proj.ElementsByLayer(layer)
	}

	o.Printf("changeset %s (%s), %d change(s)\n", cs.ID, cs.Name, cs.Stats.Total())

	for _, el := range elements {
		o.Printf("%-50s %s\n", el.ID, el.Name)
	}

	if check, _ := fs.GetBool("check"); check {
		findings := validation.Run(proj, mgr.Model.Manifest.Layers)
		for _, finding := range findings {
			o.Println(finding.String())
		}

		if len(findings) == 0 {
			o.Println("validation: clean")
		}
	}

	return nil
}

// DiffCmd returns the diff command.
func DiffCmd(app *App) *Command {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "diff [id]",
		Short: "Show per-element diffs of staged changes",
		Long: `Show each staged change with a field-level diff of the element's
before and after state. Defaults to the active changeset.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDiff(o, app, args)
		},
	}
}

func execDiff(o *IO, app *App, args []string) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	cs, err := resolveChangeset(mgr, args)
	if err != nil {
		return err
	}

	for _, rec := range cs.Changes {
		o.Printf("%3d  %-6s  %s\n", rec.Seq, rec.Op, rec.ElementID)

		switch rec.Op {
		case staging.OpAdd:
			printElement(o, rec.After)
		case staging.OpDelete:
			printElement(o, rec.Before)
		case staging.OpUpdate:
			diff := cmp.Diff(rec.Before, rec.After)
			if diff != "" {
				o.Printf("%s", diff)
			}
		}

		o.Println()
	}

	return nil
}
