// Package parser converts YAML calculator scripts into AST types.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/keypad-calc/pkg/ast"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// MaxSourceSize is the maximum script size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// MaxSessions is the maximum number of sessions per script.
const MaxSessions = 100

// MaxSteps is the maximum number of steps per script, across all sessions.
const MaxSteps = 1000

// MaxParallel is the maximum value of the top-level parallel key.
const MaxParallel = 20

// ParseError represents an error encountered during script parsing.
type ParseError struct {
	Message  string
	Location string // e.g., "step 2 of session 'main' (line 7)"
}

func (e *ParseError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Parse parses a YAML script. A script is either a mapping with a
// "sessions" list or, as a shorthand, a mapping with a single "steps" list
// that becomes one session named "main".
func Parse(source []byte) (*ast.Script, error) {
	if len(source) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("script size %d exceeds maximum %d bytes", len(source), MaxSourceSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ParseError{Message: "empty script"}
	}

	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Message: "script must be a mapping"}
	}

	script := &ast.Script{}
	var sessionsNode, stepsNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		switch key {
		case "name":
			script.Name = val.Value
		case "parallel":
			n, err := strconv.Atoi(val.Value)
			if err != nil || n < 0 || n > MaxParallel {
				return nil, &ParseError{
					Message:  fmt.Sprintf("parallel must be an integer between 0 and %d", MaxParallel),
					Location: lineLoc("script", val),
				}
			}
			script.Parallel = n
		case "sessions":
			sessionsNode = val
		case "steps":
			stepsNode = val
		default:
			return nil, &ParseError{
				Message:  fmt.Sprintf("unknown key '%s' in script", key),
				Location: lineLoc("script", root.Content[i]),
			}
		}
	}

	switch {
	case sessionsNode != nil && stepsNode != nil:
		return nil, &ParseError{Message: "script must have either 'sessions' or 'steps', not both"}
	case sessionsNode != nil:
		sessions, err := parseSessions(sessionsNode)
		if err != nil {
			return nil, err
		}
		script.Sessions = sessions
	case stepsNode != nil:
		steps, err := parseSteps(stepsNode, "session 'main'")
		if err != nil {
			return nil, err
		}
		script.Sessions = []*ast.Session{{Name: "main", Steps: steps}}
	default:
		return nil, &ParseError{Message: "script must have 'sessions' or 'steps'"}
	}

	if n := script.StepCount(); n > MaxSteps {
		return nil, &ParseError{Message: fmt.Sprintf("script has %d steps, maximum is %d", n, MaxSteps)}
	}
	return script, nil
}

// ParseFile reads and parses the script at path. A script without a name
// is named after its file.
func ParseFile(path string) (*ast.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	script, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if script.Name == "" {
		base := filepath.Base(path)
		script.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return script, nil
}

// parseSessions parses the top-level sessions list.
func parseSessions(node *yaml.Node) ([]*ast.Session, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "sessions must be a sequence", Location: lineLoc("script", node)}
	}
	if len(node.Content) == 0 {
		return nil, &ParseError{Message: "sessions must not be empty", Location: lineLoc("script", node)}
	}
	if len(node.Content) > MaxSessions {
		return nil, &ParseError{Message: fmt.Sprintf("script has %d sessions, maximum is %d", len(node.Content), MaxSessions)}
	}

	seen := make(map[string]bool)
	sessions := make([]*ast.Session, 0, len(node.Content))
	for i, item := range node.Content {
		sess, err := parseSession(i, item)
		if err != nil {
			return nil, err
		}
		if seen[sess.Name] {
			return nil, &ParseError{
				Message:  fmt.Sprintf("duplicate session name '%s'", sess.Name),
				Location: lineLoc(fmt.Sprintf("session %d", i+1), item),
			}
		}
		seen[sess.Name] = true
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// parseSession parses one entry of the sessions list.
func parseSession(index int, node *yaml.Node) (*ast.Session, error) {
	loc := lineLoc(fmt.Sprintf("session %d", index+1), node)
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Message: "session must be a mapping", Location: loc}
	}

	sess := &ast.Session{}
	var stepsNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "name":
			sess.Name = val.Value
		case "steps":
			stepsNode = val
		default:
			return nil, &ParseError{
				Message:  fmt.Sprintf("unknown key '%s' in session", key),
				Location: loc,
			}
		}
	}

	if sess.Name == "" {
		sess.Name = fmt.Sprintf("session-%d", index+1)
	}
	if stepsNode == nil {
		return nil, &ParseError{
			Message:  "session must have 'steps'",
			Location: fmt.Sprintf("session '%s'", sess.Name),
		}
	}

	steps, err := parseSteps(stepsNode, fmt.Sprintf("session '%s'", sess.Name))
	if err != nil {
		return nil, err
	}
	sess.Steps = steps
	return sess, nil
}

// parseSteps parses a sequence of step definitions.
func parseSteps(node *yaml.Node, context string) ([]*ast.Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "steps must be a sequence", Location: context}
	}

	steps := make([]*ast.Step, 0, len(node.Content))
	for i, item := range node.Content {
		step, err := parseStep(item, fmt.Sprintf("step %d of %s (line %d)", i+1, context, item.Line))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseStep parses a single step body. Exactly one of set, tokens, equal
// or reset must be present.
func parseStep(body *yaml.Node, loc string) (*ast.Step, error) {
	if body.Kind != yaml.MappingNode {
		return nil, &ParseError{Message: "step must be a mapping", Location: loc}
	}

	step := &ast.Step{Line: body.Line}
	var kinds []string

	for i := 0; i+1 < len(body.Content); i += 2 {
		key := body.Content[i].Value
		val := body.Content[i+1]

		switch key {
		case "name":
			step.Name = val.Value

		case "set":
			if val.Kind != yaml.ScalarNode {
				return nil, &ParseError{Message: "set must be a string expression", Location: loc}
			}
			step.Kind = ast.StepSet
			step.Expression = val.Value
			kinds = append(kinds, key)

		case "tokens":
			toks, err := parseTokens(val, key, loc)
			if err != nil {
				return nil, err
			}
			step.Kind = ast.StepTokens
			step.Tokens = toks
			kinds = append(kinds, key)

		case "equal":
			toks, err := parseTokens(val, key, loc)
			if err != nil {
				return nil, err
			}
			step.Kind = ast.StepEqual
			step.Tokens = toks
			kinds = append(kinds, key)

		case "reset":
			var on bool
			if val.Kind != yaml.ScalarNode || val.Decode(&on) != nil || !on {
				return nil, &ParseError{Message: "reset must be true", Location: loc}
			}
			step.Kind = ast.StepReset
			kinds = append(kinds, key)

		case "expect":
			v, err := strconv.ParseFloat(val.Value, 64)
			if err != nil || val.Kind != yaml.ScalarNode {
				return nil, &ParseError{Message: fmt.Sprintf("expect must be a number, got %q", val.Value), Location: loc}
			}
			step.Expect = &v

		case "expect_result":
			r, err := types.ParseResult(val.Value)
			if err != nil {
				return nil, &ParseError{Message: err.Error(), Location: loc}
			}
			step.ExpectResult = &r

		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in step", key), Location: loc}
		}
	}

	switch len(kinds) {
	case 0:
		return nil, &ParseError{Message: "step must have one of set, tokens, equal or reset", Location: loc}
	case 1:
		return step, nil
	default:
		return nil, &ParseError{
			Message:  fmt.Sprintf("step has more than one kind: %s", strings.Join(kinds, ", ")),
			Location: loc,
		}
	}
}

// parseTokens accepts a sequence of scalars, a whitespace-separated string
// or null (no tokens). Scalars keep their source text so that literals such
// as "05" reach the evaluator unchanged.
func parseTokens(node *yaml.Node, key, loc string) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		toks := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, &ParseError{Message: fmt.Sprintf("%s items must be scalars", key), Location: loc}
			}
			toks = append(toks, item.Value)
		}
		return toks, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}
		return strings.Fields(node.Value), nil
	default:
		return nil, &ParseError{Message: fmt.Sprintf("%s must be a list or a string", key), Location: loc}
	}
}

func lineLoc(what string, node *yaml.Node) string {
	return fmt.Sprintf("%s (line %d)", what, node.Line)
}
