package cli

import (
	"io"
	"os/exec"
	"strings"

	"github.com/archstage/archstage/internal/fs"
	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

// App carries the resolved configuration and the lazily-opened model
// that commands share. Commands that only print config never touch the
// model directory; everything else opens it once per invocation.
type App struct {
	Config      model.Config
	Sources     model.ConfigSources
	ModelDirAbs string
	FS          fs.FS
	Env         map[string]string
	Stdin       io.Reader

	model *model.Model
	mgr   *staging.Manager
}

// Model loads the model from disk on first use.
func (a *App) Model() (*model.Model, error) {
	if a.model != nil {
		return a.model, nil
	}

	m, err := model.Load(a.FS, a.ModelDirAbs)
	if err != nil {
		return nil, err
	}

	a.model = m

	return m, nil
}

// Manager returns the staging manager over the loaded model.
func (a *App) Manager() (*staging.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}

	m, err := a.Model()
	if err != nil {
		return nil, err
	}

	a.mgr = staging.NewManager(m)

	return a.mgr, nil
}

// Mutations returns the mutation handler that routes element writes
// through the active changeset or directly to the base model.
func (a *App) Mutations() (*staging.MutationHandler, error) {
	mgr, err := a.Manager()
	if err != nil {
		return nil, err
	}

	return staging.NewMutationHandler(mgr), nil
}

// Author resolves the author name: explicit config wins, then git
// user.name, then empty.
func (a *App) Author() string {
	if a.Config.Author != "" {
		return a.Config.Author
	}

	return gitUserName()
}

func gitUserName() string {
	cmd := exec.Command("git", "config", "user.name")

	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(output))
}
