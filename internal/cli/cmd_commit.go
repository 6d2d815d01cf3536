package cli

import (
	"context"
	"errors"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/staging"
)

// CommitCmd returns the commit command.
func CommitCmd(app *App) *Command {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.Bool("skip-validation", false, "Commit even when validation reports errors")
	fs.Bool("skip-drift-check", false, "Commit even when the base has drifted from the snapshot")

	return &Command{
		Flags: fs,
		Usage: "commit [id] [flags]",
		Short: "Merge a staged changeset into the base model",
		Long: `Commit a staged changeset: check the base against the changeset's
snapshot, validate the projected state, apply the change log in order,
and persist every affected document atomically. A persistence failure
rolls the in-memory model back and leaves the changeset staged.
Defaults to the active changeset.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execCommit(o, app, fs, args)
		},
	}
}

func execCommit(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	cs, err := resolveChangeset(mgr, args)
	if err != nil {
		return err
	}

	skipValidation, _ := fs.GetBool("skip-validation")
	skipDrift, _ := fs.GetBool("skip-drift-check")

	result, err := mgr.Commit(cs.ID, staging.CommitOptions{
		SkipValidation: skipValidation,
		SkipDriftCheck: skipDrift,
	})
	if err != nil {
		printCommitFailure(o, err)

		return err
	}

	o.Printf("committed %s (%s)\n", result.ChangesetID, result.Name)
	o.Printf("  changes: +%d ~%d -%d\n", result.Stats.Adds, result.Stats.Updates, result.Stats.Deletes)
	o.Printf("  layers:  %s\n", strings.Join(result.Layers, ", "))
	o.Printf("  model:   %s -> %s\n", shortHash(result.PreviousHash), shortHash(result.NewHash))

	return nil
}

// printCommitFailure expands drift and validation failures before the
// generic error line so the caller sees what to fix.
func printCommitFailure(o *IO, err error) {
	var drift *staging.DriftError
	if errors.As(err, &drift) {
		o.ErrPrintln("base model changed since the changeset snapshot:")

		for _, layer := range drift.Layers {
			o.ErrPrintln("  layer:", layer)
		}

		for _, id := range drift.Elements {
			o.ErrPrintln("  element:", id)
		}

		o.ErrPrintln("re-create the changeset or pass --skip-drift-check")

		return
	}

	var invalid *staging.ValidationError
	if errors.As(err, &invalid) {
		o.ErrPrintln("projected model fails validation:")

		for _, finding := range invalid.Findings {
			o.ErrPrintln(" ", finding.String())
		}

		o.ErrPrintln("fix the staged changes or pass --skip-validation")
	}
}

func shortHash(hash string) string {
	const short = 12
	if len(hash) <= short {
		return hash
	}

	return hash[:short]
}
