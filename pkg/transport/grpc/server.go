package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-freshness/pkg/document"
    obsmetrics "github.com/amirimatin/go-freshness/pkg/observability/metrics"
    "github.com/amirimatin/go-freshness/pkg/observability/tracing"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Server implements transport.VoteServer over gRPC using a JSON codec.
// It exposes the vote service (freshness checks, round watch stream)
// plus the standard gRPC health service.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config

    watch struct {
        mu   sync.Mutex
        subs map[*watchSub]struct{}
    }
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// watchReq opens a round watch stream.
type watchReq struct {
    NodeID string `json:"nodeId,omitempty"`
}

// voteServer defines the methods we expose.
type voteServer interface {
    Check(ctx context.Context, in *document.Doc) (*document.Doc, error)
    Watch(*watchReq, Vote_WatchServer) error
}

type voteImpl struct {
    server  *Server
    handler transport.VoteHandler
}

func (v *voteImpl) Check(ctx context.Context, in *document.Doc) (*document.Doc, error) {
    if in == nil { in = &document.Doc{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.check")
    defer end()
    out, err := v.handler(ctx, *in)
    if err != nil { return nil, err }
    obsmetrics.VotesAnswered.WithLabelValues(replyVerdict(out)).Inc()
    return &out, nil
}

// replyVerdict labels a vote reply for metrics.
func replyVerdict(reply document.Doc) string {
    switch {
    case reply.Flag("veto"):
        return "veto"
    case reply.Flag("fresher"):
        return "fresher"
    default:
        return "ok"
    }
}

func (v *voteImpl) Watch(req *watchReq, stream Vote_WatchServer) error {
    sub := &watchSub{ss: stream}
    if req != nil { sub.nodeID = req.NodeID }
    v.server.addSub(sub)
    defer v.server.removeSub(sub)
    // Block until client disconnects
    <-stream.Context().Done()
    return nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Vote_serviceDesc = grpc.ServiceDesc{
    ServiceName: "freshness.v1.Vote",
    HandlerType: (*voteServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "Check", Handler: _Vote_Check_Handler},
    },
    Streams: []grpc.StreamDesc{{
        StreamName:    "Watch",
        ServerStreams: true,
        Handler:       _Vote_Watch_Handler,
    }},
}

func _Vote_Check_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(document.Doc)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(voteServer).Check(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/freshness.v1.Vote/Check"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(voteServer).Check(ctx, req.(*document.Doc))
    }
    return interceptor(ctx, in, info, handler)
}

func _Vote_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
    m := new(watchReq)
    if err := stream.RecvMsg(m); err != nil { return err }
    return srv.(voteServer).Watch(m, &voteWatchServer{stream})
}

// Vote_WatchServer is the server side of the round watch stream.
type Vote_WatchServer interface {
    Send(*transport.RoundUpdate) error
    grpc.ServerStream
}

type voteWatchServer struct{ grpc.ServerStream }

func (x *voteWatchServer) Send(u *transport.RoundUpdate) error { return x.ServerStream.SendMsg(u) }

func (s *Server) Start(ctx context.Context, handler transport.VoteHandler) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    // keepalive settings for long-lived watch streams
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    // Register the vote service
    s.watch.subs = make(map[*watchSub]struct{})
    srv.RegisterService(&_Vote_serviceDesc, &voteImpl{server: s, handler: handler})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the bound listen address once Start ran, else the
// configured bind string. Useful with ":0" binds in tests.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ transport.VoteServer = (*Server)(nil)
var _ transport.RoundBroadcaster = (*Server)(nil)

// --- Round watch streaming ---

type watchSub struct {
    ss     grpc.ServerStream
    nodeID string
}

func (s *Server) addSub(sub *watchSub) {
    s.watch.mu.Lock()
    defer s.watch.mu.Unlock()
    if s.watch.subs == nil { s.watch.subs = make(map[*watchSub]struct{}) }
    s.watch.subs[sub] = struct{}{}
    obsmetrics.WatchSubscribers.Inc()
}

func (s *Server) removeSub(sub *watchSub) {
    s.watch.mu.Lock()
    defer s.watch.mu.Unlock()
    if _, ok := s.watch.subs[sub]; !ok { return }
    delete(s.watch.subs, sub)
    obsmetrics.WatchSubscribers.Dec()
}

// BroadcastRound sends a round update to all active watch subscribers
// and returns the number of successful sends. Subscribers whose stream
// errored are dropped.
func (s *Server) BroadcastRound(u transport.RoundUpdate) int {
    s.watch.mu.Lock()
    defer s.watch.mu.Unlock()
    cnt := 0
    for sub := range s.watch.subs {
        if err := sub.ss.SendMsg(&u); err == nil {
            cnt++
        } else {
            delete(s.watch.subs, sub)
            obsmetrics.WatchSubscribers.Dec()
        }
    }
    obsmetrics.WatchUpdates.Add(float64(cnt))
    return cnt
}
