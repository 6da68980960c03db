// Package api implements the REST API of the calculator service: stateless
// evaluation, calculator sessions with repeat-equals, and Prometheus
// metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/metrics"
	"github.com/lemonberrylabs/keypad-calc/pkg/parser"
	"github.com/lemonberrylabs/keypad-calc/pkg/runtime"
	"github.com/lemonberrylabs/keypad-calc/pkg/store"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// Options configures the API server.
type Options struct {
	// Metrics receives evaluation counters and serves /metrics. Nil
	// disables both.
	Metrics *metrics.Metrics

	// RateLimit is the number of requests per second accepted across all
	// clients. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// AccessLog enables per-request logging.
	AccessLog bool
}

// Server is the REST API server.
type Server struct {
	app     *fiber.App
	store   *store.Store
	metrics *metrics.Metrics
	limiter *rate.Limiter
}

// New creates a new API server. When opts.Metrics is set the store's
// OnChange hook is pointed at the sessions gauge.
func New(s *store.Store, opts Options) *Server {
	srv := &Server{
		store:   s,
		metrics: opts.Metrics,
	}
	if opts.RateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}
	if opts.Metrics != nil {
		s.OnChange = opts.Metrics.SetSessions
		opts.Metrics.SetSessions(s.Len())
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	if srv.limiter != nil {
		app.Use(srv.rateLimit)
	}

	// Calculator API
	app.Post("/v1/evaluate", srv.evaluate)
	app.Get("/v1/operators", srv.listOperators)

	// Sessions API
	app.Post("/v1/sessions", srv.createSession)
	app.Get("/v1/sessions", srv.listSessions)
	app.Get("/v1/sessions/:id", srv.getSession)
	app.Delete("/v1/sessions/:id", srv.deleteSession)
	app.Post("/v1/sessions/:id\\:evaluate", srv.sessionEvaluate)
	app.Post("/v1/sessions/:id\\:equal", srv.sessionEqual)
	app.Post("/v1/sessions/:id\\:reset", srv.sessionReset)
	app.Get("/v1/sessions/:id/history", srv.sessionHistory)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorResponse(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func (s *Server) rateLimit(c *fiber.Ctx) error {
	if !s.limiter.Allow() {
		return errorResponse(c, fiber.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "rate limit exceeded")
	}
	return c.Next()
}

// --- Calculator Handlers ---

type evaluateRequest struct {
	Expression string   `json:"expression"`
	Tokens     []string `json:"tokens"`
}

func (r evaluateRequest) validate() error {
	if r.Expression != "" && len(r.Tokens) > 0 {
		return errors.New("set either expression or tokens, not both")
	}
	return nil
}

// evaluateResponse is a calculation together with the evaluator status it
// left behind.
type evaluateResponse struct {
	store.Calculation
	Status types.Status `json:"status"`
}

func parseEvaluateRequest(c *fiber.Ctx) (evaluateRequest, error) {
	var req evaluateRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %v", err)
	}
	return req, req.validate()
}

func (s *Server) evaluate(c *fiber.Ctx) error {
	req, err := parseEvaluateRequest(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	}

	e := expr.NewWithOperators(s.store.Operators())
	calc := store.Calculation{Kind: store.KindEvaluate, Time: time.Now()}
	var v float64
	if req.Tokens != nil {
		calc.Input = req.Tokens
		v, err = e.EvaluateChunks(req.Tokens)
	} else {
		calc.Input = strings.Fields(req.Expression)
		v, err = e.Evaluate(req.Expression)
	}
	calc.Result = types.ResultOf(err)
	calc.Value = v
	if err != nil {
		calc.Error = err.Error()
	}
	s.observe(calc)

	return c.JSON(evaluateResponse{Calculation: calc, Status: e.Status()})
}

func (s *Server) listOperators(c *fiber.Ctx) error {
	ops := s.store.Operators()
	items := make([]fiber.Map, 0)
	for _, sym := range ops.Symbols() {
		op, _ := ops.Lookup(sym)
		items = append(items, fiber.Map{
			"symbol":   op.Symbol,
			"priority": op.Priority,
			"arity":    op.Arity.String(),
			"aliases":  ops.Aliases(sym),
		})
	}
	return c.JSON(fiber.Map{
		"operators": items,
	})
}

// --- Session Handlers ---

type createSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) createSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	sess, err := s.store.Create(req.Name)
	if err != nil {
		if errors.Is(err, store.ErrFull) {
			return errorResponse(c, fiber.StatusTooManyRequests, "RESOURCE_EXHAUSTED", err.Error())
		}
		return errorResponse(c, fiber.StatusInternalServerError, "INTERNAL", err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(sess.Snapshot())
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": s.store.List(),
	})
}

func notFound(c *fiber.Ctx, err error) error {
	return errorResponse(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
}

func (s *Server) getSession(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	return c.JSON(sess.Snapshot())
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	if err := s.store.Delete(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.JSON(fiber.Map{})
}

func (s *Server) sessionEvaluate(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	req, err := parseEvaluateRequest(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	}

	var calc store.Calculation
	if req.Tokens != nil {
		calc = sess.Evaluate(req.Tokens)
	} else {
		calc = sess.EvaluateExpression(req.Expression)
	}
	return s.calculationResponse(c, sess, calc)
}

func (s *Server) sessionEqual(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	req, err := parseEvaluateRequest(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	}

	tokens := req.Tokens
	if req.Expression != "" {
		tokens = strings.Fields(req.Expression)
	}
	return s.calculationResponse(c, sess, sess.Equal(tokens))
}

func (s *Server) sessionReset(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	return s.calculationResponse(c, sess, sess.Reset())
}

func (s *Server) sessionHistory(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	return c.JSON(fiber.Map{
		"calculations": sess.History(),
	})
}

func (s *Server) calculationResponse(c *fiber.Ctx, sess *store.Session, calc store.Calculation) error {
	s.observe(calc)
	return c.JSON(fiber.Map{
		"calculation": calc,
		"session":     sess.Snapshot(),
	})
}

func (s *Server) observe(calc store.Calculation) {
	s.metrics.ObserveEvaluation(strings.ToLower(string(calc.Kind)), calc.Result, len(calc.Input))
}

// --- Script Loading ---

// LoadScripts runs every .yaml and .yml script in dir and keeps the
// sessions it creates, so a server can start with prepared state. Scripts
// that fail to parse are skipped with a warning.
func (s *Server) LoadScripts(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading scripts directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		script, err := parser.ParseFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("Warning: could not parse %q: %v", name, err)
			continue
		}

		engine := runtime.NewEngine(script, s.store)
		engine.KeepSessions = true
		engine.OnCalculation = s.observe
		report, err := engine.Execute(ctx)
		if err != nil {
			return fmt.Errorf("running script %q: %w", name, err)
		}
		if !report.Passed() {
			log.Printf("Warning: script %q had %d failed step(s)", name, report.Failures)
		}
		loaded++
		log.Printf("Loaded script %q from %s (%d session(s), %d step(s))", script.Name, name, len(report.Sessions), report.Steps)
	}

	log.Printf("Loaded %d script(s) from %s", loaded, dir)
	return nil
}
