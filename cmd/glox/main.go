// Command glox is the CLI entry point for the glox bytecode interpreter:
// run a script, disassemble its compiled bytecode, or drop into an
// interactive REPL.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kristofer/glox/pkg/compiler"
	"github.com/kristofer/glox/pkg/object"
	"github.com/kristofer/glox/pkg/vm"
)

const version = "0.1.0"

var errColor = color.New(color.FgRed, color.Bold)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "glox",
		Short:        "glox is a bytecode interpreter for the Lox scripting language",
		SilenceUsage: true,
		// Bare `glox file.lox` runs a script without needing the `run`
		// subcommand spelled out.
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runREPL()
			}
			return runFile(args[0])
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newDisassembleCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Run a glox source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive glox session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL()
		},
	}
}

func newDisassembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disassemble <file>",
		Aliases: []string{"disasm"},
		Short:   "Compile a glox source file and print its bytecode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disassembleFile(args[0])
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the glox version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("glox version %s\n", version)
		},
	}
}

func runFile(filename string) error {
	source, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "reading %s", filename)
	}

	v := vm.New()
	result, err := v.Interpret(string(source))
	if err != nil {
		errColor.Fprintln(os.Stderr, err.Error())
	}
	switch result {
	case vm.InterpretCompileError:
		os.Exit(65)
	case vm.InterpretRuntimeError:
		os.Exit(70)
	}
	return nil
}

// disassembleFile compiles source without running it and dumps the
// resulting top-level chunk, plus every function constant nested in it,
// recursively. glox has no persisted bytecode format, so this always
// compiles from source first.
func disassembleFile(filename string) error {
	source, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "reading %s", filename)
	}

	v := vm.New()
	fn, ok := compiler.Compile(string(source), v)
	if !ok {
		errColor.Fprintln(os.Stderr, "compile failed; nothing to disassemble")
		os.Exit(65)
	}

	disassembleFunctionTree(os.Stdout, fn)
	return nil
}

func disassembleFunctionTree(w io.Writer, fn *object.Function) {
	vm.DisassembleChunk(w, &fn.Chunk, fn.DisplayName())
	for _, c := range fn.Chunk.Constants {
		if !c.IsObj() {
			continue
		}
		if inner, ok := c.AsObj().(*object.Function); ok {
			fmt.Fprintln(w)
			disassembleFunctionTree(w, inner)
		}
	}
}

// runREPL runs an interactive session over a single, persistent VM: each
// line is compiled and interpreted immediately, and globals defined in
// one line remain visible to the next (nothing ever scopes a "session"
// narrower than a whole VM, so the REPL just keeps reusing one).
func runREPL() error {
	fmt.Printf("glox %s\n", version)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "glox> ",
		HistoryFile: replHistoryPath(),
	})
	if err != nil {
		return errors.Wrap(err, "starting REPL")
	}
	defer rl.Close()

	v := vm.New()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":exit" {
			return nil
		}

		// The REPL accepts bare expressions ("1 + 2") in addition to full
		// statements, by wrapping anything that doesn't already look like
		// a statement in a print.
		source := line
		if !looksLikeStatement(line) {
			source = "print " + line + ";"
		}

		if _, err := v.Interpret(source); err != nil {
			errColor.Fprintln(os.Stderr, err.Error())
		}
	}
}

func looksLikeStatement(line string) bool {
	for _, kw := range []string{"var ", "fun ", "class ", "if ", "if(", "while ", "while(",
		"for ", "for(", "print ", "return", "{", "}"} {
		if strings.HasPrefix(line, kw) {
			return true
		}
	}
	return strings.HasSuffix(line, ";") || strings.HasSuffix(line, "}")
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glox_history"
	}
	return home + "/.glox_history"
}
