package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/lemonberrylabs/keypad-calc/pkg/api"
	grpcapi "github.com/lemonberrylabs/keypad-calc/pkg/api/grpc"
	"github.com/lemonberrylabs/keypad-calc/pkg/metrics"
	"github.com/lemonberrylabs/keypad-calc/pkg/store"
)

// testEnv is a calculator server with both surfaces listening on loopback
// and sharing one store, the way calcd runs them.
type testEnv struct {
	baseURL string
	store   *store.Store
	metrics *metrics.Metrics
	rest    *api.Server
	grpc    *grpcapi.Client
}

func startEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.New(store.Options{MaxSessions: 10})
	m := metrics.New()
	rest := api.New(st, api.Options{Metrics: m})
	gs := grpcapi.New(st, m)

	httpLis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go rest.App().Listener(httpLis)

	grpcLis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go gs.ServeListener(grpcLis)

	conn, err := grpcapi.Dial(grpcLis.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		gs.GracefulStop()
		_ = rest.Shutdown()
	})

	return &testEnv{
		baseURL: "http://" + httpLis.Addr().String(),
		store:   st,
		metrics: m,
		rest:    rest,
		grpc:    grpcapi.NewClient(conn),
	}
}

// apiURL builds a full URL for the given API path.
func (e *testEnv) apiURL(path string) string {
	return strings.TrimRight(e.baseURL, "/") + "/v1/" + path
}

// postJSON sends body to the given API path and decodes the JSON response.
func (e *testEnv) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := http.Post(e.apiURL(path), "application/json", reader)
	if err != nil {
		t.Fatalf("HTTP error: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp)
}

// getJSON fetches the given API path and decodes the JSON response.
func (e *testEnv) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(e.apiURL(path))
	if err != nil {
		t.Fatalf("HTTP error: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %q: %v", string(data), err)
	}
	return out
}

// value extracts calculation.value from a session operation response.
func value(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	calc, ok := resp["calculation"].(map[string]any)
	if !ok {
		t.Fatalf("response has no calculation: %v", resp)
	}
	v, _ := calc["value"].(float64)
	return v
}
