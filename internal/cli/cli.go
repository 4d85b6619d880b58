package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandMimic   Command = "mimic"
	CommandCompile Command = "compile"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandMimic:   {},
	CommandCompile: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// specCommands take a grammar spec as their argument.
var specCommands = map[Command]struct{}{
	CommandMimic:   {},
	CommandCompile: {},
	CommandDoctor:  {},
}

type Parsed struct {
	Command  Command
	Spec     string
	Lexicon  []string
	ShowHelp bool
}

// Parse reads flags up to the command, then joins everything after a
// spec-taking command into its grammar spec.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--lexicon":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--lexicon requires a comma-separated word list")
			}
			parsed.Lexicon = splitWords(args[i])
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if _, needsSpec := specCommands[cmd]; needsSpec {
				if len(rest) == 0 {
					return Parsed{}, fmt.Errorf("command %q requires a grammar spec", arg)
				}
				parsed.Spec = strings.Join(rest, " ")
			} else if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func splitWords(list string) []string {
	var words []string
	for _, w := range strings.Split(list, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--lexicon WORDS] <command> [spec...]

Commands:
  mimic SPEC     Load SPEC as a grammar and decode utterances from stdin
  compile SPEC   Print SPEC's recognition graph in FST text form
  doctor SPEC    Run grammar diagnostics over SPEC
  version        Print version information
  help           Show this help

The spec is a compound grammar string, e.g. 'paint [the] (wall | fence)'.
Multiple arguments after the command are joined with spaces.

Flags:
  --lexicon WORDS  Comma-separated vocabulary for compile and doctor
                   checks (default: accept every word)
  -h, --help       Show help
  --version        Show version
`, binaryName)
}
