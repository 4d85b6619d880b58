package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/cli"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/compound"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/doctor"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/engine"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/kaldi"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/logging"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/version"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/window"
)

type Runner struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
	Windows engine.WindowSource
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("dfly"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("dfly"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	logger.Info("command start",
		"command", parsed.Command,
		"spec", parsed.Spec,
		"log", logRuntime.Path,
	)

	lex := lexiconFor(parsed.Lexicon)

	switch parsed.Command {
	case cli.CommandDoctor:
		return r.commandDoctor(parsed.Spec, lex, logger)
	case cli.CommandCompile:
		return r.commandCompile(parsed.Spec, lex, logger)
	case cli.CommandMimic:
		return r.commandMimic(ctx, parsed.Spec, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDoctor(spec string, lex kaldi.Lexicon, logger *slog.Logger) int {
	g, err := buildGrammar(spec, nil, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	report := doctor.Run(g, lex)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

func (r Runner) commandCompile(spec string, lex kaldi.Lexicon, logger *slog.Logger) int {
	g, err := buildGrammar(spec, nil, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	art, err := kaldi.NewCompiler(lex, kaldi.Config{}, logger).Compile(g)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	for _, cr := range art.Rules() {
		fmt.Fprintf(r.Stdout, "# rule %s\n", cr.Rule.Name())
		fmt.Fprint(r.Stdout, cr.Graph.Text())
	}
	return 0
}

// commandMimic decodes one utterance per stdin line against the spec's
// grammar, printing each recognition's extracted value.
func (r Runner) commandMimic(ctx context.Context, spec string, logger *slog.Logger) int {
	eng := engine.NewText(r.windowSource(), logger)
	g, err := buildGrammar(spec, func(root *grammar.Node) {
		fmt.Fprintf(r.Stdout, "%v\n", root.Value())
	}, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := g.Load(eng); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	scanner := bufio.NewScanner(r.stdin())
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		if err := eng.Mimic(ctx, words...); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(r.Stderr, "error: read utterances: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) stdin() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

// windowSource picks the compositor-backed query inside a Hyprland
// session and a fixed empty window everywhere else.
func (r Runner) windowSource() engine.WindowSource {
	if r.Windows != nil {
		return r.Windows
	}
	if strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) != "" {
		return window.Hyprland{}
	}
	return window.Static{}
}

func lexiconFor(words []string) kaldi.Lexicon {
	if len(words) == 0 {
		return kaldi.Permissive()
	}
	return kaldi.NewStaticLexicon(words...)
}

// buildGrammar wraps a compound spec in a single-rule grammar named for
// the CLI.
func buildGrammar(spec string, handler func(*grammar.Node), logger *slog.Logger) (*grammar.Grammar, error) {
	opts := []grammar.RuleOption{}
	if handler != nil {
		opts = append(opts, grammar.OnRecognition(handler))
	}
	rule, err := compound.NewRule("cli", spec, nil, opts...)
	if err != nil {
		return nil, err
	}
	g := grammar.NewGrammar("cli", logger)
	if err := g.AddRule(rule); err != nil {
		return nil, err
	}
	return g, nil
}
