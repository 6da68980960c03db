package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/parser"
	"github.com/lemonberrylabs/keypad-calc/pkg/runtime"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run SCRIPT...",
		Short: "Run calculator scripts and check their expectations",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScripts,
	}
	cmd.Flags().StringP("output", "o", "text", "Report format: text, yaml or json")
	return cmd
}

func runScripts(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "text", "yaml", "json":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	failed := 0
	for _, path := range args {
		script, err := parser.ParseFile(path)
		if err != nil {
			return err
		}

		report, err := runtime.NewEngine(script, nil).Execute(ctx)
		if err != nil {
			return fmt.Errorf("running %s: %w", path, err)
		}
		if err := writeReport(cmd.OutOrStdout(), format, report); err != nil {
			return err
		}
		if !report.Passed() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d script(s) failed", failed, len(args))
	}
	return nil
}

func writeReport(w io.Writer, format string, report *runtime.Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "script %s\n", report.Script)
	for _, sess := range report.Sessions {
		fmt.Fprintf(w, "  session %s\n", sess.Name)
		for _, step := range sess.Steps {
			mark := "ok  "
			if !step.Passed {
				mark = "FAIL"
			}
			label := step.Name
			if label == "" {
				label = fmt.Sprintf("%s %s", step.Kind, strings.Join(step.Input, " "))
			}
			fmt.Fprintf(w, "    %s %d %s = %s (%s)", mark, step.Index, strings.TrimSpace(label), expr.FormatNumber(step.Value), step.Result)
			if step.Failure != "" {
				fmt.Fprintf(w, ": %s", step.Failure)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "%d step(s), %d failure(s) in %s\n", report.Steps, report.Failures, report.Duration)
	return nil
}
