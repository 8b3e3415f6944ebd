package httpjson

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "net"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/amirimatin/go-freshness/pkg/observability/tracing"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Server is a minimal HTTP server exposing admin endpoints for status,
// on-demand freshness checks, optime advancement and metrics/healthz.
// It is intended for operators and development tooling, not for the
// vote path itself.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *http.Server
    logger *log.Logger
    tlsCfg *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":17946").
func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start launches the HTTP server and registers handlers backed by the provided
// functions. The server is shut down when the context is canceled.
func (s *Server) Start(ctx context.Context, status transport.StatusFunc, check transport.CheckFunc, advance transport.AdvanceFunc) error {
    mux := http.NewServeMux()
    mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        ctx, end := tracing.StartSpan(r.Context(), "http.status")
        defer end()
        data, err := status(ctx)
        if err != nil { http.Error(w, fmt.Sprintf("status error: %v", err), http.StatusInternalServerError); return }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write(data)
    })
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    // Prometheus metrics
    mux.Handle("/metrics", promhttp.Handler())
    mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        if check == nil { http.Error(w, "check not supported", http.StatusNotImplemented); return }
        // An empty body runs a round with default settings.
        var req transport.CheckRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
            http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
            return
        }
        ctx, end := tracing.StartSpan(r.Context(), "http.check")
        defer end()
        resp, err := check(ctx, req)
        w.Header().Set("Content-Type", "application/json")
        if err != nil {
            if resp.Error == "" { resp.Error = err.Error() }
            w.WriteHeader(http.StatusInternalServerError)
            _ = json.NewEncoder(w).Encode(resp)
            return
        }
        _ = json.NewEncoder(w).Encode(resp)
    })
    mux.HandleFunc("/optime", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        if advance == nil { http.Error(w, "optime not supported", http.StatusNotImplemented); return }
        var req transport.AdvanceRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
            return
        }
        ctx, end := tracing.StartSpan(r.Context(), "http.optime")
        defer end()
        resp, err := advance(ctx, req)
        w.Header().Set("Content-Type", "application/json")
        if err != nil {
            if resp.Error == "" { resp.Error = err.Error() }
            w.WriteHeader(http.StatusInternalServerError)
            _ = json.NewEncoder(w).Encode(resp)
            return
        }
        _ = json.NewEncoder(w).Encode(resp)
    })

    s.srv = &http.Server{Addr: s.bind, Handler: mux}

    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    if s.tlsCfg != nil {
        ln = tls.NewListener(ln, s.tlsCfg)
    }
    s.lis = ln

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
            s.logger.Printf("httpjson: server error: %v", err)
        }
    }()
    return nil
}

// Addr returns the bound listen address once Start ran, else the
// configured bind string.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    err := s.srv.Shutdown(c)
    s.srv = nil
    return err
}

var _ transport.AdminServer = (*Server)(nil)
