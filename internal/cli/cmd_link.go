package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/model"
)

var errLinkArgs = errors.New("link requires <source> <target> <predicate>")

// LinkCmd returns the link command.
func LinkCmd(app *App) *Command {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	fs.StringArrayP("prop", "p", nil, "Edge property key=value (repeatable)")

	return &Command{
		Flags: fs,
		Usage: "link <source> <target> <predicate> [flags]",
		Short: "Add an explicit relationship edge",
		Long: `Add an explicit edge between two existing elements. Links write to
the base model immediately and are not staged; an open changeset will
see them as drift at commit time.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLink(o, app, fs, args)
		},
	}
}

func execLink(o *IO, app *App, fs *flag.FlagSet, args []string) error {
	if len(args) < 3 {
		return errLinkArgs
	}

	props, err := parseProps(fs)
	if err != nil {
		return err
	}

	mgr, err := app.Manager()
	if err != nil {
		return err
	}

	edge := model.Edge{
		Source:     args[0],
		Target:     args[1],
		Predicate:  args[2],
		Properties: props,
	}

	err = mgr.Link(edge)
	if err != nil {
		return err
	}

	o.Printf("linked %s -[%s]-> %s\n", edge.Source, edge.Predicate, edge.Target)

	return nil
}

// UnlinkCmd returns the unlink command.
func UnlinkCmd(app *App) *Command {
	fs := flag.NewFlagSet("unlink", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "unlink <source> <target> <predicate>",
		Short: "Remove an explicit relationship edge",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 3 {
				return errLinkArgs
			}

			mgr, err := app.Manager()
			if err != nil {
				return err
			}

			err = mgr.Unlink(args[0], args[1], args[2])
			if err != nil {
				return err
			}

			o.Printf("unlinked %s -[%s]-> %s\n", args[0], args[2], args[1])

			return nil
		},
	}
}
