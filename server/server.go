package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
)

// WeftServer serves WeaverService over Connect (HTTP, including the gRPC
// and gRPC-Web protocols through h2c) and over a native gRPC listener.
type WeftServer struct {
	handles *HandleStore
	service *WeaverService
	mux     *http.ServeMux
	grpc    *grpc.Server
	http    *http.Server

	stopSweeper func()
}

// ServerOption configures a WeftServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sweepInterval time.Duration
	handleTTL     time.Duration
	grpcOptions   []grpc.ServerOption
}

// WithHandleTTL sets how long an unused donor handle lives and how often
// idle handles are swept.
func WithHandleTTL(interval, ttl time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sweepInterval = interval
		c.handleTTL = ttl
	}
}

// WithGRPCOptions adds options to the native gRPC server.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(c *serverConfig) { c.grpcOptions = append(c.grpcOptions, opts...) }
}

// New creates a WeftServer.
func New(opts ...ServerOption) *WeftServer {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		handleTTL:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handles := NewHandleStore()
	s := &WeftServer{
		handles: handles,
		service: NewWeaverService(handles),
		mux:     http.NewServeMux(),
	}

	mountConnect(s.mux, s.service)

	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	s.http = &http.Server{
		Handler:           s.mux,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcOpts := append([]grpc.ServerOption{grpc.ForceServerCodec(cborCodec{})}, cfg.grpcOptions...)
	s.grpc = grpc.NewServer(grpcOpts...)
	RegisterWeaverServer(s.grpc, grpcWeaver{svc: s.service})

	// Start handle TTL sweeper
	s.stopSweeper = handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)

	return s
}

// Handler returns the HTTP handler serving the Connect endpoints.
func (s *WeftServer) Handler() http.Handler { return s.mux }

// Service returns the transport-neutral service.
func (s *WeftServer) Service() *WeaverService { return s.service }

// Handles returns the donor handle store.
func (s *WeftServer) Handles() *HandleStore { return s.handles }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *WeftServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(lis)
}

// Serve serves the Connect endpoints on lis until Stop.
func (s *WeftServer) Serve(lis net.Listener) error {
	log.Noticef("weft server listening on %s", lis.Addr())
	log.Noticef("  Connect (HTTP/CBOR): http://%s%s", lis.Addr(), WeaveProcedure)
	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeGRPC serves native gRPC on lis until Stop.
func (s *WeftServer) ServeGRPC(lis net.Listener) error {
	log.Noticef("weft gRPC listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop shuts down the server.
func (s *WeftServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	s.grpc.GracefulStop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Warningf("http shutdown: %s", err)
	}
}
