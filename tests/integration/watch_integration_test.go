//go:build integration

package integration

import (
    "context"
    "testing"
    "time"

    "github.com/amirimatin/go-freshness/pkg/bootstrap"
    "github.com/amirimatin/go-freshness/pkg/transport"
    votegrpc "github.com/amirimatin/go-freshness/pkg/transport/grpc"
    httpjson "github.com/amirimatin/go-freshness/pkg/transport/httpjson"
)

// A round triggered over the admin plane must show up on a gRPC watch of
// the same node's vote endpoint.
func TestWatch_StreamsRoundVerdicts(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    n1, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID: "n1", SetName: "rs2", MemberID: 0,
        VoteAddr: "127.0.0.1:9531", MemBind: "127.0.0.1:7966", AdminAddr: "127.0.0.1:17966",
        DiscoveryKind: "static",
    })
    if err != nil {
        t.Fatalf("n1: %v", err)
    }
    defer n1.Close()

    n2, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID: "n2", SetName: "rs2", MemberID: 1,
        VoteAddr: "127.0.0.1:9532", MemBind: "127.0.0.1:8966", AdminAddr: "127.0.0.1:18966",
        DiscoveryKind: "static", SeedsCSV: "127.0.0.1:7966",
    })
    if err != nil {
        t.Fatalf("n2: %v", err)
    }
    defer n2.Close()

    cli := httpjson.NewClient(3 * time.Second)
    waitForMembers(t, ctx, cli, "127.0.0.1:17966", 2)

    updates := make(chan transport.RoundUpdate, 8)
    wcli := votegrpc.NewClient(5 * time.Second)
    defer wcli.Close()
    watchCtx, stopWatch := context.WithCancel(ctx)
    defer stopWatch()
    go func() {
        _ = wcli.Watch(watchCtx, "127.0.0.1:9531", "itest-watch", func(u transport.RoundUpdate) {
            select {
            case updates <- u:
            default:
            }
        })
    }()

    // The watcher attaches asynchronously, so keep triggering rounds
    // until one of them lands on the stream.
    var got transport.RoundUpdate
    waitUntil(t, 20*time.Second, func() error {
        res, err := cli.PostCheck(ctx, "127.0.0.1:17966", transport.CheckRequest{})
        if err != nil { return err }
        if res.Error != "" { return errNotYet }
        select {
        case got = <-updates:
            return nil
        case <-time.After(time.Second):
            return errNotYet
        }
    })
    if got.Node != "n1" {
        t.Fatalf("update came from %q, want n1", got.Node)
    }
    if got.RoundID == "" {
        t.Fatalf("update carries no round id")
    }
    if got.Targets != 1 {
        t.Fatalf("update targets=%d, want 1", got.Targets)
    }
    if got.UnixMilli == 0 {
        t.Fatalf("update carries no timestamp")
    }
}
