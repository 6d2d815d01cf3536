package cli

import (
	"strings"

	"github.com/peterh/liner"
)

// confirm asks an interactive y/N question on the terminal. Returns
// false on EOF, interrupt, or anything but an explicit yes.
func confirm(prompt string) bool {
	state := liner.NewLiner()
	defer func() { _ = state.Close() }()

	state.SetCtrlCAborts(true)

	answer, err := state.Prompt(prompt + " [y/N] ")
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}
