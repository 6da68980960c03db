package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

const replHelp = `Enter an expression with spaces between tokens, e.g. "3 + 4".
  =            repeat the last operation on the result
  = TOKENS     press "=" with more input
  c            clear
  q            quit`

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive calculator session",
		Args:  cobra.NoArgs,
		RunE:  runRepl,
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e := expr.New()

	fmt.Fprintln(out, replHelp)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		var v float64
		var err error
		switch {
		case line == "":
			continue
		case line == "q" || line == "quit" || line == "exit":
			return nil
		case line == "c" || line == "clear":
			e.Reset()
			fmt.Fprintln(out, "0")
			continue
		case line == "?" || line == "help":
			fmt.Fprintln(out, replHelp)
			continue
		case strings.HasPrefix(line, "="):
			v, err = e.EqualChunks(strings.Fields(strings.TrimPrefix(line, "=")))
		default:
			v, err = e.Evaluate(line)
		}

		if err != nil {
			fmt.Fprintln(out, describe(err))
			continue
		}
		fmt.Fprintln(out, expr.FormatNumber(v))
	}
}

// describe renders a failed evaluation as "Result: message".
func describe(err error) string {
	var ce *types.CalcError
	if errors.As(err, &ce) {
		return ce.Result.String() + ": " + ce.Message
	}
	return types.ResultOf(err).String() + ": " + err.Error()
}
