package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	grpcapi "github.com/lemonberrylabs/keypad-calc/pkg/api/grpc"
	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval EXPRESSION...",
		Short: "Evaluate an expression",
		Long: `Evaluate a whitespace-separated infix expression, for example

  calc eval 2 '*' '(' 3 + 4 ')'

With --tokens every argument is one keypad token and adjacent numbers are
joined, so "calc eval --tokens 1 0 0 + 1 0 %" evaluates 100 + 10 %.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEval,
	}
	cmd.Flags().Bool("tokens", false, "Treat each argument as a single keypad token")
	cmd.Flags().String("server", "", "Evaluate on a calcd gRPC server at this address")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	return cmd
}

// evalOutput is what eval prints with --json.
type evalOutput struct {
	Value  float64 `json:"value"`
	Result string  `json:"result"`
	Status string  `json:"status"`
	Error  string  `json:"error,omitempty"`
}

func runEval(cmd *cobra.Command, args []string) error {
	useTokens, _ := cmd.Flags().GetBool("tokens")
	server, _ := cmd.Flags().GetString("server")
	asJSON, _ := cmd.Flags().GetBool("json")

	var out evalOutput
	var err error
	if server != "" {
		out, err = evalRemote(cmd.Context(), server, args, useTokens)
		if err != nil {
			return err
		}
	} else {
		out = evalLocal(args, useTokens)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else if out.Result == types.Success.String() {
		fmt.Fprintln(cmd.OutOrStdout(), expr.FormatNumber(out.Value))
	}

	if out.Result != types.Success.String() {
		return errors.New(out.Error)
	}
	return nil
}

func evalLocal(args []string, useTokens bool) evalOutput {
	e := expr.New()
	var v float64
	var err error
	if useTokens {
		v, err = e.EvaluateChunks(args)
	} else {
		v, err = e.Evaluate(strings.Join(args, " "))
	}

	out := evalOutput{Value: v, Result: types.ResultOf(err).String(), Status: e.Status().String()}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func evalRemote(ctx context.Context, addr string, args []string, useTokens bool) (evalOutput, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpcapi.Dial(addr)
	if err != nil {
		return evalOutput{}, err
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	var resp map[string]any
	if useTokens {
		resp, err = client.EvaluateTokens(ctx, args)
	} else {
		resp, err = client.Evaluate(ctx, strings.Join(args, " "))
	}
	if err != nil {
		return evalOutput{}, fmt.Errorf("remote evaluate: %w", err)
	}

	out := evalOutput{}
	out.Value, _ = resp["value"].(float64)
	out.Result, _ = resp["result"].(string)
	out.Status, _ = resp["status"].(string)
	out.Error, _ = resp["error"].(string)
	return out, nil
}
