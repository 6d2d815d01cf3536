package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/archstage/archstage/internal/model"
)

var errModelExists = errors.New("model directory already initialized")

// InitCmd returns the init command.
func InitCmd(app *App) *Command {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.StringP("name", "n", "", "Model name (defaults to the model directory basename)")
	fs.StringArray("layer", nil, "Layer to declare (repeatable; defaults to the standard four)")

	return &Command{
		Flags: fs,
		Usage: "init [flags]",
		Short: "Initialize a model directory",
		Long: `Initialize the model directory: manifest, empty layer documents,
relationships file, and the changesets directory.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execInit(o, app, fs)
		},
	}
}

func execInit(o *IO, app *App, fs *flag.FlagSet) error {
	if _, err := app.FS.Stat(filepath.Join(app.ModelDirAbs, model.ManifestFileName)); err == nil {
		return fmt.Errorf("%w: %s", errModelExists, app.ModelDirAbs)
	}

	name, _ := fs.GetString("name")
	if name == "" {
		name = filepath.Base(app.ModelDirAbs)
	}

	layers, _ := fs.GetStringArray("layer")

	if layers == nil {
		layers = model.DefaultLayers
	}

	for _, layer := range layers {
		if layer == "" {
			return fmt.Errorf("%w: --layer", model.ErrFlagRequiresArg)
		}
	}

	m, err := model.Init(app.FS, app.ModelDirAbs, name, layers, time.Now())
	if err != nil {
		return err
	}

	o.Println("initialized model", m.Manifest.Name, "at", app.ModelDirAbs)

	for _, layer := range m.Manifest.Layers {
		o.Println("  layer:", layer)
	}

	return nil
}
