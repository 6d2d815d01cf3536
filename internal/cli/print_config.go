package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/model"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(app *App) *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "print-config",
		Short: "Show resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := model.FormatConfig(app.Config)
			if err != nil {
				return err
			}

			o.Println(formatted)

			o.Println("")
			o.Println("# Sources:")

			if app.Sources.Global != "" {
				o.Println("#   global:", app.Sources.Global)
			}

			if app.Sources.Project != "" {
				o.Println("#   project:", app.Sources.Project)
			}

			if app.Sources.Global == "" && app.Sources.Project == "" {
				o.Println("#   (using defaults only)")
			}

			return nil
		},
	}
}
