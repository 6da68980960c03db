// Package grpcapi implements the calculator gRPC service. Requests and
// responses are google.protobuf.Struct messages, so any gRPC client can call
// the service without generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/metrics"
	"github.com/lemonberrylabs/keypad-calc/pkg/store"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "keypad.calc.v1.Calculator"

// CalculatorServer is the server API for the Calculator service.
type CalculatorServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionEvaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionEqual(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type methodFunc func(CalculatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn methodFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(CalculatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(CalculatorServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the Calculator service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Evaluate", CalculatorServer.Evaluate),
		unary("CreateSession", CalculatorServer.CreateSession),
		unary("GetSession", CalculatorServer.GetSession),
		unary("DeleteSession", CalculatorServer.DeleteSession),
		unary("SessionEvaluate", CalculatorServer.SessionEvaluate),
		unary("SessionEqual", CalculatorServer.SessionEqual),
		unary("SessionReset", CalculatorServer.SessionReset),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keypad/calc/v1/calculator.proto",
}

// Server implements the Calculator gRPC service.
type Server struct {
	store   *store.Store
	metrics *metrics.Metrics
	health  *health.Server
	grpc    *grpc.Server
}

// New creates a new gRPC server wrapping the given store. m may be nil.
func New(s *store.Store, m *metrics.Metrics) *Server {
	srv := &Server{
		store:   s,
		metrics: m,
		health:  health.NewServer(),
	}

	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, srv)
	healthpb.RegisterHealthServer(gs, srv.health)
	srv.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks the service as not serving and gracefully stops the
// gRPC server.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// --- Calculator Service ---

// Evaluate evaluates an expression or token list on a throwaway evaluator.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	expression, tokens, err := input(req)
	if err != nil {
		return nil, err
	}

	e := expr.NewWithOperators(s.store.Operators())
	calc := store.Calculation{Kind: store.KindEvaluate, Time: time.Now()}
	var v float64
	if tokens != nil {
		calc.Input = tokens
		v, err = e.EvaluateChunks(tokens)
	} else {
		calc.Input = strings.Fields(expression)
		v, err = e.Evaluate(expression)
	}
	calc.Result = types.ResultOf(err)
	calc.Value = v
	if err != nil {
		calc.Error = err.Error()
	}
	s.observe(calc)

	m := calculationToMap(calc)
	m["status"] = e.Status().String()
	return toStruct(m)
}

// CreateSession creates a calculator session.
func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.store.Create(stringField(req, "name"))
	if err != nil {
		if errors.Is(err, store.ErrFull) {
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(snapshotToMap(sess.Snapshot()))
}

// GetSession returns a session snapshot.
func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return toStruct(snapshotToMap(sess.Snapshot()))
}

// DeleteSession removes a session.
func (s *Server) DeleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.store.Delete(id); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &structpb.Struct{}, nil
}

// SessionEvaluate evaluates fresh input on a session.
func (s *Server) SessionEvaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	expression, tokens, err := input(req)
	if err != nil {
		return nil, err
	}

	var calc store.Calculation
	if tokens != nil {
		calc = sess.Evaluate(tokens)
	} else {
		calc = sess.EvaluateExpression(expression)
	}
	return s.calculationResponse(sess, calc)
}

// SessionEqual presses "=" on a session.
func (s *Server) SessionEqual(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	expression, tokens, err := input(req)
	if err != nil {
		return nil, err
	}
	if expression != "" {
		tokens = strings.Fields(expression)
	}
	return s.calculationResponse(sess, sess.Equal(tokens))
}

// SessionReset clears a session.
func (s *Server) SessionReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return s.calculationResponse(sess, sess.Reset())
}

func (s *Server) session(req *structpb.Struct) (*store.Session, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return sess, nil
}

func (s *Server) calculationResponse(sess *store.Session, calc store.Calculation) (*structpb.Struct, error) {
	s.observe(calc)
	return toStruct(map[string]any{
		"calculation": calculationToMap(calc),
		"session":     snapshotToMap(sess.Snapshot()),
	})
}

func (s *Server) observe(calc store.Calculation) {
	s.metrics.ObserveEvaluation(strings.ToLower(string(calc.Kind)), calc.Result, len(calc.Input))
}

// --- Conversion Helpers ---

func stringField(req *structpb.Struct, key string) string {
	if v, ok := req.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

// input extracts the "expression" string or "tokens" list of a request.
// tokens is nil unless the request carries a tokens list.
func input(req *structpb.Struct) (string, []string, error) {
	fields := req.GetFields()
	expression := stringField(req, "expression")

	v, ok := fields["tokens"]
	if !ok {
		return expression, nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return "", nil, status.Error(codes.InvalidArgument, "tokens must be a list of strings")
	}
	tokens := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", nil, status.Error(codes.InvalidArgument, "tokens must be a list of strings")
		}
		tokens = append(tokens, sv.StringValue)
	}
	if expression != "" && len(tokens) > 0 {
		return "", nil, status.Error(codes.InvalidArgument, "set either expression or tokens, not both")
	}
	return expression, tokens, nil
}

func calculationToMap(calc store.Calculation) map[string]any {
	in := make([]any, len(calc.Input))
	for i, tok := range calc.Input {
		in[i] = tok
	}
	m := map[string]any{
		"kind":   string(calc.Kind),
		"input":  in,
		"result": calc.Result.String(),
		"value":  calc.Value,
		"time":   calc.Time.Format(time.RFC3339Nano),
	}
	if calc.Error != "" {
		m["error"] = calc.Error
	}
	return m
}

func snapshotToMap(snap store.Snapshot) map[string]any {
	m := map[string]any{
		"id":           snap.ID,
		"name":         snap.Name,
		"status":       snap.Status.String(),
		"value":        snap.Value,
		"equaled":      snap.Equaled,
		"calculations": float64(snap.Calculations),
		"createTime":   snap.CreateTime.Format(time.RFC3339Nano),
		"updateTime":   snap.UpdateTime.Format(time.RFC3339Nano),
	}
	if snap.LastOperator != "" {
		m["lastOperator"] = snap.LastOperator
		m["lastOperand"] = snap.LastOperand
	}
	return m
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return st, nil
}
