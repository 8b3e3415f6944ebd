package transport

import (
    "context"

    "github.com/amirimatin/go-freshness/pkg/optime"
)

// StatusFunc returns a JSON-encoded status payload for the admin /status
// endpoint. Using []byte avoids import cycles on node types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// CheckRequest asks a node to run one freshness round now.
type CheckRequest struct {
    TimeoutMillis int64 `json:"timeoutMillis,omitempty"`
}

// CheckResult is the operator-facing summary of one freshness round.
type CheckResult struct {
    RoundID   string `json:"roundId"`
    Freshest  bool   `json:"freshest"`
    Tied      bool   `json:"tied"`
    Responses int    `json:"responses"`
    Targets   int    `json:"targets"`
    Millis    int64  `json:"millis"`
    Error     string `json:"error,omitempty"`
}

// CheckFunc runs one freshness round on the local node.
type CheckFunc func(ctx context.Context, req CheckRequest) (CheckResult, error)

// AdvanceRequest moves the node's last applied optime forward.
type AdvanceRequest struct {
    Secs uint32 `json:"secs"`
    Inc  uint32 `json:"inc"`
}

// AdvanceResult reports the optime in effect after the request.
type AdvanceResult struct {
    Secs  uint32 `json:"secs"`
    Inc   uint32 `json:"inc"`
    Error string `json:"error,omitempty"`
}

// OpTime converts the wire form back to an optime value.
func (r AdvanceResult) OpTime() optime.OpTime { return optime.New(r.Secs, r.Inc) }

// AdvanceFunc applies an optime advance on the local node.
type AdvanceFunc func(ctx context.Context, req AdvanceRequest) (AdvanceResult, error)

// AdminServer exposes operator endpoints (/status, /check, /optime) for
// one node.
type AdminServer interface {
    Start(ctx context.Context, status StatusFunc, check CheckFunc, advance AdvanceFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// AdminClient performs operator calls against a node's AdminServer.
type AdminClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    PostCheck(ctx context.Context, addr string, req CheckRequest) (CheckResult, error)
    PostAdvance(ctx context.Context, addr string, req AdvanceRequest) (AdvanceResult, error)
}

// WatchClient subscribes to the stream of round results a vote server
// publishes (gRPC-only). Implementations should use persistent
// connections with keepalive and backoff.
type WatchClient interface {
    // Watch establishes a long-lived server-stream from addr and invokes
    // onUpdate for each round the remote node decides. It blocks until
    // the stream ends or ctx is done.
    Watch(ctx context.Context, addr string, nodeID string, onUpdate func(u RoundUpdate)) error
}
