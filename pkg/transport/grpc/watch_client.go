package grpc

import (
    "context"

    "google.golang.org/grpc"

    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Watch establishes a server-stream to the vote service and invokes
// onUpdate for every round update the peer publishes. It returns when
// the stream breaks or ctx is canceled; the caller decides on retry.
func (c *Client) Watch(ctx context.Context, addr string, nodeID string, onUpdate func(transport.RoundUpdate)) error {
    cc, rel, err := c.cm.Get(ctx, addr)
    if err != nil { return err }
    defer rel()
    // Build a client stream manually
    sd := &grpc.StreamDesc{ServerStreams: true}
    cs, err := cc.NewStream(ctx, sd, "/freshness.v1.Vote/Watch")
    if err != nil { return err }
    // send initial watch request
    if err := cs.SendMsg(&watchReq{NodeID: nodeID}); err != nil { return err }
    if err := cs.CloseSend(); err != nil { /* ignore close send errors for server streaming */ }
    // receive loop
    for {
        var u transport.RoundUpdate
        if err := cs.RecvMsg(&u); err != nil {
            return err
        }
        if onUpdate != nil { onUpdate(u) }
    }
}

var _ transport.WatchClient = (*Client)(nil)
