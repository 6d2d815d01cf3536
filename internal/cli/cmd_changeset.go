package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/staging"
)

var (
	errChangesetNameRequired = errors.New("changeset name is required")
	errChangesetIDRequired   = errors.New("changeset id is required")
)

// CsCreateCmd returns the cs create command.
func CsCreateCmd(app *App) *Command {
	fs := flag.NewFlagSet("cs create", flag.ContinueOnError)
	fs.StringP("description", "d", "", "Description text")
	fs.StringP("author", "a", "", "Author (defaults to config, then git user.name)")
	fs.Bool("use", false, "Activate the changeset after creating it")

	return &Command{
		Flags: fs,
		Usage: "cs create <name> [flags]",
		Short: "Create a changeset, prints its id",
		Long: `Create a changeset branching from the current base state. The base
snapshot is captured at creation and never changes. Pass --use to make
it the active changeset so element commands stage into it.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execCsCreate(o, app, fs, args)
		},
	}
}

func execCsCreate(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	if name == "" {
		return errChangesetNameRequired
	}

	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	description, _ := fs.GetString("description")

	author, _ := fs.GetString("author")
	if !fs.Changed("author") {
		author = app.Author()
	}

	cs, err := mgr.Create(name, description, author)
	if err != nil {
		return err
	}

	if use, _ := fs.GetBool("use"); use {
		err = mgr.SetActive(cs.ID)
		if err != nil {
			return err
		}
	}

	o.Println(cs.ID)

	return nil
}

// CsLsCmd returns the cs ls command.
func CsLsCmd(app *App) *Command {
	fs := flag.NewFlagSet("cs ls", flag.ContinueOnError)
	fs.String("status", "", "Only changesets with this status (draft|staged|committed|discarded)")

	return &Command{
		Flags: fs,
		Usage: "cs ls [flags]",
		Short: "List changesets",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execCsLs(o, app, fs)
		},
	}
}

func execCsLs(o *IO, app *App, fs *flag.FlagSet) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	changesets, err := mgr.List()
	if err != nil {
		return err
	}

	activeID, err := mgr.ActiveID()
	if err != nil {
		return err
	}

	statusFilter, _ := fs.GetString("status")

	for _, cs := range changesets {
		if statusFilter != "" && cs.Status != statusFilter {
			continue
		}

		marker := " "
		if cs.ID == activeID {
			marker = "*"
		}

		o.Printf("%s %s  %-9s  %-3d  %s\n", marker, cs.ID, cs.Status, cs.Stats.Total(), cs.Name)
	}

	return nil
}

// CsStatusCmd returns the cs status command.
func CsStatusCmd(app *App) *Command {
	fs := flag.NewFlagSet("cs status", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "cs status [id]",
		Short: "Show a changeset and its staged changes",
		Long: `Show one changeset's metadata, staged change log, and whether the
base has drifted from its snapshot. Defaults to the active changeset.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execCsStatus(o, app, args)
		},
	}
}

func execCsStatus(o *IO, app *App, args []string) error {
	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	cs, err := resolveChangeset(mgr, args)
	if err != nil {
		return err
	}

	o.Println("id:         ", cs.ID)
	o.Println("name:       ", cs.Name)

	if cs.Description != "" {
		o.Println("description:", cs.Description)
	}

	if cs.Author != "" {
		o.Println("author:     ", cs.Author)
	}

	o.Println("status:     ", cs.Status)
	o.Println("base:       ", cs.BaseSnapshot)
	o.Printf("changes:     %d (+%d ~%d -%d)\n", cs.Stats.Total(), cs.Stats.Adds, cs.Stats.Updates, cs.Stats.Deletes)

	for _, rec := range cs.Changes {
		o.Printf("  %3d  %-6s  %s\n", rec.Seq, rec.Op, rec.ElementID)
	}

	if cs.Status == staging.StatusDraft || cs.Status == staging.StatusStaged {
		reportDrift(o, mgr, cs.ID)
	}

	return nil
}

func reportDrift(o *IO, mgr *staging.Manager, id string) {
	base, err := mgr.Store.LoadSnapshot(id)
	if err != nil {
		o.Warn("cannot read base snapshot: "+err.Error(), "run cs status again or discard the changeset")

		return
	}

	_, err = staging.DetectDrift(base, mgr.Model)

	var drift *staging.DriftError

	switch {
	case err == nil:
		o.Println("drift:       none")
	case errors.As(err, &drift):
		o.Println("drift:       base has changed since this changeset was created")

		for _, layer := range drift.Layers {
			o.Println("  layer:", layer)
		}

		for _, id := range drift.Elements {
			o.Println("  element:", id)
		}
	default:
		o.Warn("drift check failed: "+err.Error(), "inspect the model directory")
	}
}

// CsUseCmd returns the cs use command.
func CsUseCmd(app *App) *Command {
	fs := flag.NewFlagSet("cs use", flag.ContinueOnError)
	fs.Bool("none", false, "Clear the active changeset instead")

	return &Command{
		Flags: fs,
		Usage: "cs use <id> [flags]",
		Short: "Activate a changeset for staging",
		Exec: func(_ context.Context, o *IO, args []string) error {
			mgr, err := app.Manager()
			if err != nil {
				return err
			}

			if none, _ := fs.GetBool("none"); none {
				err = mgr.ClearActive()
				if err != nil {
					return err
				}

				o.Println("cleared active changeset")

				return nil
			}

			if len(args) == 0 || args[0] == "" {
				return errChangesetIDRequired
			}

			id, err := staging.ParseChangesetID(args[0])
			if err != nil {
				return err
			}

			err = mgr.SetActive(id)
			if err != nil {
				return err
			}

			o.Println("active changeset:", id)

			return nil
		},
	}
}

// UnstageCmd returns the unstage command.
func UnstageCmd(app *App) *Command {
	fs := flag.NewFlagSet("unstage", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "unstage <element-id>",
		Short: "Remove an element's staged changes from the active changeset",
		Exec: func(_ context.Context, o *IO, args []string) error {
			id, err := positionalID(args)
			if err != nil {
				return err
			}

			mgr, err := app.Manager()
			if err != nil {
				return err
			}

			cs, removed, err := mgr.Unstage(id)
			if err != nil {
				return err
			}

			o.Printf("unstaged %d change(s) for %s, %d remaining\n", removed, id, cs.Stats.Total())

			return nil
		},
	}
}

// resolveChangeset loads the changeset named by args[0], falling back to
// the active changeset.
func resolveChangeset(mgr *staging.Manager, args []string) (*staging.Changeset, error) {
	if len(args) > 0 && args[0] != "" {
		id, err := staging.ParseChangesetID(args[0])
		if err != nil {
			return nil, err
		}

		return mgr.Get(id)
	}

	cs, err := mgr.Active()
	if err != nil {
		return nil, err
	}

	if cs == nil {
		return nil, fmt.Errorf("%w: pass a changeset id or activate one with cs use", staging.ErrNoActiveChangeset)
	}

	return cs, nil
}
