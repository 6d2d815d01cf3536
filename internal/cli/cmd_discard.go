package cli

import (
	"context"
	"errors"
	"strconv"

	flag "github.com/spf13/pflag"
)

var errDiscardAborted = errors.New("discard aborted")

// DiscardCmd returns the discard command.
func DiscardCmd(app *App) *Command {
	fs := flag.NewFlagSet("discard", flag.ContinueOnError)
	fs.BoolP("yes", "y", false, "Skip the confirmation prompt")

	return &Command{
		Flags: fs,
		Usage: "discard [id] [flags]",
		Short: "Discard a changeset without applying it",
		Long: `Discard a draft or staged changeset. The base model is untouched;
the staged change log is kept on disk for audit but can never be
committed. Defaults to the active changeset.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDiscard(o, app, fs, args)
		},
	}
}

func execDiscard(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	cs, err := resolveChangeset(mgr, args)
	if err != nil {
		return err
	}

	if yes, _ := fs.GetBool("yes"); !yes {
		if !confirm("discard changeset " + cs.ID + " (" + cs.Name + ") with " +
			staged(cs.Stats.Total()) + "?") {
			return errDiscardAborted
		}
	}

	cs, err = mgr.Discard(cs.ID)
	if err != nil {
		return err
	}

	o.Printf("discarded %s (%s)\n", cs.ID, cs.Name)

	return nil
}

func staged(n int) string {
	if n == 1 {
		return "1 staged change"
	}

	return strconv.Itoa(n) + " staged changes"
}
