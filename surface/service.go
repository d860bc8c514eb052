// Package surface exposes a Bridge over connect RPC so that an editor
// plugin, or another ipybridge process, can drive it remotely.
//
// The service is ipybridge.v1.BridgeService. Every procedure is unary and
// carries a google.protobuf.Struct both ways, so any connect, gRPC or
// gRPC-web client can call it without generated stubs:
//
//	curl -H 'Content-Type: application/json' -d '{"code":"1+1"}' \
//	    http://127.0.0.1:8970/ipybridge.v1.BridgeService/Run
package surface

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
)

const ServiceName = "ipybridge.v1.BridgeService"

// Fully-qualified procedure paths.
const (
	ConnectProcedure   = "/" + ServiceName + "/Connect"
	RunProcedure       = "/" + ServiceName + "/Run"
	CompleteProcedure  = "/" + ServiceName + "/Complete"
	InspectProcedure   = "/" + ServiceName + "/Inspect"
	InterruptProcedure = "/" + ServiceName + "/Interrupt"
	TerminateProcedure = "/" + ServiceName + "/Terminate"
	RestartProcedure   = "/" + ServiceName + "/Restart"
	WriteProcedure     = "/" + ServiceName + "/Write"
	OutputProcedure    = "/" + ServiceName + "/Output"
	StatusProcedure    = "/" + ServiceName + "/Status"
)

type service struct {
	bridge *bridge.Bridge
}

// NewHandler builds an HTTP handler serving b. It returns the path to
// mount the handler on.
func NewHandler(b *bridge.Bridge, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := &service{bridge: b}
	mux := http.NewServeMux()

	mux.Handle(ConnectProcedure, unary(ConnectProcedure, svc.connect, opts))
	mux.Handle(RunProcedure, unary(RunProcedure, svc.run, opts))
	mux.Handle(CompleteProcedure, unary(CompleteProcedure, svc.complete, opts))
	mux.Handle(InspectProcedure, unary(InspectProcedure, svc.inspect, opts))
	mux.Handle(InterruptProcedure, unary(InterruptProcedure, svc.interrupt, opts))
	mux.Handle(TerminateProcedure, unary(TerminateProcedure, svc.terminate, opts))
	mux.Handle(RestartProcedure, unary(RestartProcedure, svc.restart, opts))
	mux.Handle(WriteProcedure, unary(WriteProcedure, svc.write, opts))
	mux.Handle(OutputProcedure, unary(OutputProcedure, svc.output, opts))
	mux.Handle(StatusProcedure, unary(StatusProcedure, svc.status, opts))

	return "/" + ServiceName + "/", mux
}

// NewServer returns an http.Server for b configured from cfg. The caller
// starts and stops it.
func NewServer(b *bridge.Bridge, cfg bridge.SurfaceConfig, observer observability.Observer) *http.Server {
	path, handler := NewHandler(b, connect.WithInterceptors(ObserverInterceptor(observer)))

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Std(),
	}
}

// ObserverInterceptor reports every call with its duration and result
// code.
func ObserverInterceptor(o observability.Observer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			level := observability.LevelVerbose
			code := "ok"
			if err != nil {
				level = observability.LevelWarning
				code = connect.CodeOf(err).String()
			}
			o.OnEvent(ctx, observability.NewEvent(EventCall, level, "surface.Handler", map[string]any{
				"procedure": req.Spec().Procedure,
				"code":      code,
				"duration":  time.Since(start).String(),
			}))
			return res, err
		}
	}
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (Res, error), opts []connect.HandlerOption) *connect.Handler {
	return connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			var in Req
			if err := fromStruct(req.Msg, &in); err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			out, err := fn(ctx, &in)
			if err != nil {
				return nil, toConnectError(err)
			}
			msg, err := toStruct(out)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(msg), nil
		},
		opts...,
	)
}

func (s *service) connect(ctx context.Context, req *connectRequest) (*messaging.KernelInfo, error) {
	return s.bridge.Connect(ctx, req.Argv)
}

func (s *service) run(ctx context.Context, req *runRequest) (*messaging.ExecuteReply, error) {
	if req.Async {
		return nil, s.bridge.RunAsync(ctx, req.Code)
	}
	return s.bridge.Run(ctx, req.Code, req.Silent)
}

func (s *service) complete(ctx context.Context, req *completeRequest) (*bridge.Completion, error) {
	return s.bridge.Complete(ctx, req.Line, req.Col)
}

func (s *service) inspect(ctx context.Context, req *inspectRequest) (empty, error) {
	return empty{}, s.bridge.Inspect(ctx, req.Word, req.Level)
}

func (s *service) interrupt(ctx context.Context, _ *empty) (empty, error) {
	return empty{}, s.bridge.Interrupt(ctx)
}

func (s *service) terminate(ctx context.Context, _ *empty) (empty, error) {
	return empty{}, s.bridge.Terminate(ctx)
}

func (s *service) restart(ctx context.Context, _ *empty) (empty, error) {
	return empty{}, s.bridge.Restart(ctx)
}

func (s *service) write(ctx context.Context, req *writeRequest) (empty, error) {
	return empty{}, s.bridge.Write(ctx, req.Text)
}

func (s *service) output(ctx context.Context, req *outputRequest) (*outputResponse, error) {
	to := -1
	if req.To != nil {
		to = *req.To
	}
	lines, total := s.bridge.Output(req.From, to)
	return &outputResponse{Lines: lines, Total: total}, nil
}

func (s *service) status(ctx context.Context, _ *empty) (bridge.Status, error) {
	return s.bridge.Status(ctx), nil
}
