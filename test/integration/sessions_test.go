package integration

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

// TestSessionSharedAcrossSurfaces drives one session from REST and gRPC
// alternately; the repeat-equals state must carry over between them.
func TestSessionSharedAcrossSurfaces(t *testing.T) {
	env := startEnv(t)

	code, created := env.postJSON(t, "sessions", map[string]any{"name": "shared"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, created)
	}
	id := created["id"].(string)

	resp, err := env.grpc.Call(ctx(t), "SessionEvaluate", map[string]any{"id": id, "expression": "10 - 3"})
	if err != nil {
		t.Fatalf("SessionEvaluate: %v", err)
	}
	if got := value(t, resp); got != 7 {
		t.Fatalf("got %v, want 7", got)
	}

	code, resp = env.postJSON(t, "sessions/"+id+":equal", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if got := value(t, resp); got != 4 {
		t.Fatalf("got %v, want 4", got)
	}

	resp, err = env.grpc.Call(ctx(t), "SessionEqual", map[string]any{"id": id})
	if err != nil {
		t.Fatalf("SessionEqual: %v", err)
	}
	if got := value(t, resp); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}

	code, history := env.getJSON(t, "sessions/"+id+"/history")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if n := len(history["calculations"].([]any)); n != 3 {
		t.Fatalf("expected 3 calculations, got %d", n)
	}

	if got := env.metrics.EvaluationCount("equal", types.Success); got != 2 {
		t.Fatalf("expected 2 equal evaluations across surfaces, got %v", got)
	}
}

// TestDeleteVisibleAcrossSurfaces verifies a session deleted over gRPC is
// gone for REST clients.
func TestDeleteVisibleAcrossSurfaces(t *testing.T) {
	env := startEnv(t)

	created, err := env.grpc.Call(ctx(t), "CreateSession", map[string]any{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := created["id"].(string)

	if code, _ := env.getJSON(t, "sessions/"+id); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if _, err := env.grpc.Call(ctx(t), "DeleteSession", map[string]any{"id": id}); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if code, _ := env.getJSON(t, "sessions/"+id); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

// TestPreloadedScriptSessions verifies sessions left by startup scripts are
// served by both surfaces.
func TestPreloadedScriptSessions(t *testing.T) {
	env := startEnv(t)

	dir := t.TempDir()
	script := `
sessions:
  - name: tape
    steps:
      - tokens: ["1", "2", "*", "3"]
        expect: 36
      - equal: []
        expect: 108
`
	if err := os.WriteFile(filepath.Join(dir, "warmup.yaml"), []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := env.rest.LoadScripts(ctx(t), dir); err != nil {
		t.Fatalf("LoadScripts: %v", err)
	}

	code, list := env.getJSON(t, "sessions")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	sessions := list["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	sess := sessions[0].(map[string]any)
	if sess["name"] != "warmup/tape" || sess["value"] != 108.0 {
		t.Fatalf("unexpected session: %v", sess)
	}

	resp, err := env.grpc.Call(ctx(t), "SessionEqual", map[string]any{"id": sess["id"]})
	if err != nil {
		t.Fatalf("SessionEqual: %v", err)
	}
	if got := value(t, resp); got != 324 {
		t.Fatalf("got %v, want 324", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startEnv(t)

	env.postJSON(t, "evaluate", map[string]any{"expression": "1 / 0"})
	if _, err := env.grpc.Evaluate(ctx(t), "1 / 0"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	resp, err := http.Get(env.baseURL + "/metrics")
	if err != nil {
		t.Fatalf("HTTP error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	want := `keypad_calc_evaluations_total{kind="evaluate",result="DivideByZero"} 2`
	if !strings.Contains(string(data), want) {
		t.Fatalf("metrics missing %q", want)
	}
}
