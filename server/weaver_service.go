package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/classfile"
)

var log = commonlog.GetLogger("weft.server")

var (
	errHandleNotFound = errors.New("donor handle not found")
	errMissingField   = errors.New("missing required field")
)

// WeaverService resolves donors and weaves classes. The methods are
// transport-neutral; Connect and gRPC adapters wrap them.
type WeaverService struct {
	handles *HandleStore
}

// NewWeaverService creates a WeaverService.
func NewWeaverService(handles *HandleStore) *WeaverService {
	return &WeaverService{handles: handles}
}

// Resolve resolves a donor and registers it under a handle.
func (s *WeaverService) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	if len(req.Donor) == 0 {
		return nil, errors.Wrap(errMissingField, "donor")
	}
	key := DonorKey(req.Donor, req.Markers)
	id, a, ok := s.handles.Find(key)
	if !ok {
		var err error
		if a, err = advice.New(req.Donor, req.Markers); err != nil {
			return nil, err
		}
		id = s.handles.Create(key, a)
		log.Infof("resolved donor %s as %s", a.Donor(), id)
	}
	r := a.Resolved()
	resp := &ResolveResponse{
		Handle:          id,
		Donor:           r.Donor,
		EnterFootprint:  int(r.Enter.Footprint),
		SkipOnException: r.Exit.SkipOnException,
	}
	if r.Enter.Alive() {
		resp.Enter = r.Enter.Unit.Name + r.Enter.Unit.Descriptor
	}
	if r.Exit.Alive() {
		resp.Exit = r.Exit.Unit.Name + r.Exit.Unit.Descriptor
	}
	return resp, nil
}

// Weave weaves one class.
func (s *WeaverService) Weave(ctx context.Context, req *WeaveRequest) (*WeaveResponse, error) {
	if len(req.Class) == 0 {
		return nil, errors.Wrap(errMissingField, "class")
	}
	var a *advice.Advice
	switch {
	case req.Handle != "":
		var ok bool
		if a, ok = s.handles.Lookup(req.Handle); !ok {
			return nil, errors.Wrapf(errHandleNotFound, "%q", req.Handle)
		}
	case len(req.Donor) > 0:
		var err error
		if a, err = advice.New(req.Donor, req.Markers); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(errMissingField, "handle or donor")
	}

	out, results, err := a.WeaveClass(req.Class, req.Match)
	if err != nil {
		return nil, err
	}
	resp := &WeaveResponse{Class: out, Methods: results}
	for _, r := range results {
		if r.Woven {
			resp.Changed = true
			break
		}
	}
	if cf, err := classfile.Parse(out); err == nil {
		resp.Name = cf.Name()
	}
	return resp, nil
}

// Release drops a handle.
func (s *WeaverService) Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	if req.Handle == "" {
		return nil, errors.Wrap(errMissingField, "handle")
	}
	return &ReleaseResponse{Released: s.handles.Release(req.Handle)}, nil
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, errHandleNotFound):
		return connect.CodeNotFound
	case errors.IsAssertionFailure(err):
		return connect.CodeInternal
	}
	// Configuration errors, missing fields, unreadable donors and malformed
	// target classes are all the caller's to fix.
	return connect.CodeInvalidArgument
}

func connectError(err error) error {
	code := errorCode(err)
	if code == connect.CodeInternal {
		log.Errorf("%+v", err)
	}
	return connect.NewError(code, err)
}

func grpcError(err error) error {
	code := errorCode(err)
	if code == connect.CodeInternal {
		log.Errorf("%+v", err)
	}
	// Connect codes share gRPC's numbering.
	return status.Error(codes.Code(code), err.Error())
}

// ---------------------------------------------------------------------------
// Connect transport
// ---------------------------------------------------------------------------

func unary[Req, Res any](fn func(context.Context, *Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, connectError(err)
		}
		return connect.NewResponse(res), nil
	}
}

// mountConnect registers Connect handlers for svc on mux.
func mountConnect(mux *http.ServeMux, svc *WeaverService) {
	opts := connect.WithCodec(cborCodec{})
	mux.Handle(ResolveProcedure, connect.NewUnaryHandler(ResolveProcedure, unary(svc.Resolve), opts))
	mux.Handle(WeaveProcedure, connect.NewUnaryHandler(WeaveProcedure, unary(svc.Weave), opts))
	mux.Handle(ReleaseProcedure, connect.NewUnaryHandler(ReleaseProcedure, unary(svc.Release), opts))
}

// ---------------------------------------------------------------------------
// gRPC transport
// ---------------------------------------------------------------------------

// WeaverServer is the gRPC service interface.
type WeaverServer interface {
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
	Weave(context.Context, *WeaveRequest) (*WeaveResponse, error)
	Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error)
}

// grpcWeaver converts service errors into gRPC statuses.
type grpcWeaver struct {
	svc *WeaverService
}

func (g grpcWeaver) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	res, err := g.svc.Resolve(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

func (g grpcWeaver) Weave(ctx context.Context, req *WeaveRequest) (*WeaveResponse, error) {
	res, err := g.svc.Weave(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

func (g grpcWeaver) Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	res, err := g.svc.Release(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

func grpcMethod[Req, Res any](name string, call func(WeaverServer, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	full := servicePathPrefix + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WeaverServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(WeaverServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// weaverServiceDesc describes WeaverService for grpc.Server.RegisterService.
var weaverServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WeaverServer)(nil),
	Methods: []grpc.MethodDesc{
		grpcMethod("Resolve", WeaverServer.Resolve),
		grpcMethod("Weave", WeaverServer.Weave),
		grpcMethod("Release", WeaverServer.Release),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "weft/v1/weaver",
}

// RegisterWeaverServer registers srv on s.
func RegisterWeaverServer(s grpc.ServiceRegistrar, srv WeaverServer) {
	s.RegisterService(&weaverServiceDesc, srv)
}
