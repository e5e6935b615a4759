package gateway

import (
	"fmt"
	"strings"

	"github.com/fableworks/continuity/internal/core/model"
)

// CommandKind is what an operator asked for in a comment.
type CommandKind int

const (
	// CommandNone: no directive found. Ordinary discussion, ignored.
	CommandNone CommandKind = iota
	CommandValidate
	CommandApprove
)

// Command is a parsed operator directive.
type Command struct {
	Kind CommandKind
	// Mode for CommandValidate. Defaults to new-only when the directive
	// carries no mode token.
	Mode model.Mode
	// IDs for CommandApprove.
	IDs []string
}

// ParseCommand scans free comment text for an operator directive. Lines that
// are not directives are ignored; the first directive line wins. A directive
// with a bad argument is an error — it is never silently reinterpreted.
func ParseCommand(text string) (Command, error) {
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "/validate":
			mode := model.ModeNewOnly
			if len(fields) > 1 {
				parsed, err := model.ParseMode(fields[1])
				if err != nil {
					return Command{}, err
				}
				mode = parsed
			}
			return Command{Kind: CommandValidate, Mode: mode}, nil
		case "/approve":
			if len(fields) < 2 {
				return Command{}, fmt.Errorf("approve directive needs at least one path id")
			}
			return Command{Kind: CommandApprove, IDs: fields[1:]}, nil
		}
	}
	return Command{Kind: CommandNone}, nil
}
