package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/archstage/archstage/internal/fs"
	"github.com/archstage/archstage/internal/model"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	if len(args) < minArgs {
		printUsage(o, nil)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			o.ErrPrintln("error: cannot get working directory:", err)

			return 1
		}
	}

	cliOverrides := model.Config{ModelDir: flags.modelDir}

	cfg, sources, err := model.LoadConfig(workDir, flags.configPath, cliOverrides, flags.hasModelDirOverride, env)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	modelDirAbs := cfg.ModelDir
	if !filepath.IsAbs(modelDirAbs) {
		modelDirAbs = filepath.Join(workDir, modelDirAbs)
	}

	app := &App{
		Config:      cfg,
		Sources:     sources,
		ModelDirAbs: modelDirAbs,
		FS:          fs.NewReal(),
		Env:         env,
		Stdin:       in,
	}

	commands := registry(app)

	if len(flags.remaining) == 0 {
		printUsage(o, commands)

		return 0
	}

	name := flags.remaining[0]
	rest := flags.remaining[1:]

	if name == "-h" || name == helpFlag {
		printUsage(o, commands)

		return 0
	}

	cmd, rest, ok := resolve(commands, name, rest)
	if !ok {
		o.ErrPrintln("error: unknown command:", strings.TrimSpace(name))
		printUsage(o, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			<-sigCh
			cancel()
		}()
	}

	code := cmd.Run(ctx, o, rest)
	if code != 0 {
		return code
	}

	return o.Finish()
}

// registry builds the command set in help-listing order.
func registry(app *App) []*Command {
	return []*Command{
		InitCmd(app),
		ElementAddCmd(app),
		ElementUpdateCmd(app),
		ElementRemoveCmd(app),
		ElementShowCmd(app),
		ElementLsCmd(app),
		LinkCmd(app),
		UnlinkCmd(app),
		CsCreateCmd(app),
		CsLsCmd(app),
		CsStatusCmd(app),
		CsUseCmd(app),
		UnstageCmd(app),
		PreviewCmd(app),
		DiffCmd(app),
		CommitCmd(app),
		DiscardCmd(app),
		PrintConfigCmd(app),
	}
}

// commandKey is the leading bare words of a usage string, so
// "element add <id> [flags]" dispatches as "element add".
func commandKey(usage string) string {
	fields := strings.Fields(usage)

	end := 0
	for end < len(fields) && isBareWord(fields[end]) {
		end++
	}

	return strings.Join(fields[:end], " ")
}

func isBareWord(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '-' {
			return false
		}
	}

	return s != ""
}

// resolve matches the invoked name (plus an optional subcommand word)
// against the registry. Grouped commands like "element add" consume the
// second arg.
func resolve(commands []*Command, name string, rest []string) (*Command, []string, bool) {
	if len(rest) > 0 {
		grouped := name + " " + rest[0]
		for _, c := range commands {
			if commandKey(c.Usage) == grouped {
				return c, rest[1:], true
			}
		}
	}

	for _, c := range commands {
		if commandKey(c.Usage) == name {
			return c, rest, true
		}
	}

	return nil, nil, false
}

type globalFlags struct {
	workDir             string
	configPath          string
	modelDir            string
	hasModelDirOverride bool
	remaining           []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", model.ErrFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --model-dir flag
	if arg == "--model-dir" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", model.ErrFlagRequiresArg, arg)
		}

		flags.modelDir = args[idx+1]
		flags.hasModelDirOverride = true

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--model-dir="); ok {
		flags.modelDir = after
		flags.hasModelDirOverride = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", model.ErrUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func printUsage(o *IO, commands []*Command) {
	o.Println(`archstage - layered architecture model store with staged changesets

Usage: archstage [options] <command> [args]

Options:
  -C, --cwd <dir>     Run as if started in <dir>
  -c, --config        Use specified config file
  --model-dir <dir>   Model directory (overrides config)

Commands:`)

	for _, c := range commands {
		o.Println(c.HelpLine())
	}
}
