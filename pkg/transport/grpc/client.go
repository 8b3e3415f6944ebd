package grpc

import (
    "context"
    "crypto/tls"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Client sends freshness commands to peers over gRPC. It implements
// transport.Messenger; connections are cached per target with idle
// eviction so repeated rounds reuse transports.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
    cm      *ConnManager
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    c := &Client{timeout: timeout}
    c.cm = NewConnManager(30*time.Second, c.dialCtx)
    return c
}

// UseTLS sets TLS config for the client. Call before the first Send.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(
        ctx,
        target,
        opts...,
    )
}

// Send delivers one freshness command to target and returns the peer's
// reply document. Transport errors surface as errors; protocol verdicts
// (fresher, veto) ride inside the reply.
func (c *Client) Send(ctx context.Context, target string, cmd document.Doc) (document.Doc, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, rel, err := c.cm.Get(cctx, target)
    if err != nil { return nil, err }
    defer rel()
    var reply document.Doc
    if err := cc.Invoke(cctx, "/freshness.v1.Vote/Check", &cmd, &reply); err != nil { return nil, err }
    return reply, nil
}

// Close releases all cached connections.
func (c *Client) Close() error {
    if c.cm != nil { c.cm.Close() }
    return nil
}

var _ transport.Messenger = (*Client)(nil)
