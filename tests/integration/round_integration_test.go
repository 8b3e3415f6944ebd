//go:build integration

package integration

import (
    "context"
    "encoding/json"
    "testing"
    "time"

    "github.com/amirimatin/go-freshness/pkg/bootstrap"
    "github.com/amirimatin/go-freshness/pkg/node"
    "github.com/amirimatin/go-freshness/pkg/transport"
    httpjson "github.com/amirimatin/go-freshness/pkg/transport/httpjson"
)

type status struct {
    NodeID      string `json:"NodeID"`
    SetName     string `json:"SetName"`
    LastApplied struct {
        Secs uint32 `json:"secs"`
        Inc  uint32 `json:"inc"`
    } `json:"LastApplied"`
    Members []struct {
        ID   string `json:"ID"`
        Addr string `json:"Addr"`
    } `json:"Members"`
    LastRound *struct {
        RoundID    string `json:"RoundID"`
        Freshest   bool   `json:"Freshest"`
        Tied       bool   `json:"Tied"`
        VetoReason string `json:"VetoReason"`
        Responses  int    `json:"Responses"`
        Targets    int    `json:"Targets"`
    } `json:"LastRound"`
}

func TestThreeNodes_FreshestWinsAfterAdvance(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    n1, n2, n3 := mustStartThreeNodes(t, ctx)
    defer n3.Close()
    defer n2.Close()
    defer n1.Close()

    cli := httpjson.NewClient(3 * time.Second)
    for _, addr := range []string{"127.0.0.1:17946", "127.0.0.1:18946", "127.0.0.1:19946"} {
        waitForMembers(t, ctx, cli, addr, 3)
    }

    // Stagger optimes so n3 has applied the most recent operation.
    advCtx, cancelAdv := context.WithTimeout(ctx, 5*time.Second)
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:17946", transport.AdvanceRequest{Secs: 100, Inc: 1}); err != nil {
        cancelAdv(); t.Fatalf("advance n1: %v", err)
    }
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:18946", transport.AdvanceRequest{Secs: 200, Inc: 1}); err != nil {
        cancelAdv(); t.Fatalf("advance n2: %v", err)
    }
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:19946", transport.AdvanceRequest{Secs: 300, Inc: 1}); err != nil {
        cancelAdv(); t.Fatalf("advance n3: %v", err)
    }
    cancelAdv()

    res, err := cli.PostCheck(ctx, "127.0.0.1:19946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check n3: %v", err) }
    if res.Error != "" { t.Fatalf("check n3: %s", res.Error) }
    if !res.Freshest || res.Tied {
        t.Fatalf("n3 verdict freshest=%v tied=%v, want freshest", res.Freshest, res.Tied)
    }
    if res.Responses != 2 || res.Targets != 2 {
        t.Fatalf("n3 answered %d/%d, want 2/2", res.Responses, res.Targets)
    }
    if res.RoundID == "" { t.Fatalf("n3 round has no id") }

    // A stale candidate must stand down.
    behind, err := cli.PostCheck(ctx, "127.0.0.1:17946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check n1: %v", err) }
    if behind.Error != "" { t.Fatalf("check n1: %s", behind.Error) }
    if behind.Freshest { t.Fatalf("n1 claims freshest with the oldest optime") }

    // The verdict is retained in node status for tooling.
    s, err := fetchStatus(ctx, cli, "127.0.0.1:19946")
    if err != nil { t.Fatalf("status n3: %v", err) }
    if s.LastRound == nil || s.LastRound.RoundID != res.RoundID {
        t.Fatalf("n3 status LastRound = %+v, want round %s", s.LastRound, res.RoundID)
    }
    if s.LastApplied.Secs != 300 || s.LastApplied.Inc != 1 {
        t.Fatalf("n3 LastApplied = %d:%d, want 300:1", s.LastApplied.Secs, s.LastApplied.Inc)
    }
}

func TestThreeNodes_TieKeepsCandidateEligible(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    n1, n2, n3 := mustStartThreeNodes(t, ctx)
    defer n3.Close()
    defer n2.Close()
    defer n1.Close()

    cli := httpjson.NewClient(3 * time.Second)
    for _, addr := range []string{"127.0.0.1:17946", "127.0.0.1:18946", "127.0.0.1:19946"} {
        waitForMembers(t, ctx, cli, addr, 3)
    }

    // n2 and n3 share the top optime; n1 trails.
    advCtx, cancelAdv := context.WithTimeout(ctx, 5*time.Second)
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:17946", transport.AdvanceRequest{Secs: 100, Inc: 1}); err != nil {
        cancelAdv(); t.Fatalf("advance n1: %v", err)
    }
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:18946", transport.AdvanceRequest{Secs: 300, Inc: 7}); err != nil {
        cancelAdv(); t.Fatalf("advance n2: %v", err)
    }
    if _, err := cli.PostAdvance(advCtx, "127.0.0.1:19946", transport.AdvanceRequest{Secs: 300, Inc: 7}); err != nil {
        cancelAdv(); t.Fatalf("advance n3: %v", err)
    }
    cancelAdv()

    // A tie is reported but does not cost the candidate its eligibility.
    res, err := cli.PostCheck(ctx, "127.0.0.1:19946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check n3: %v", err) }
    if res.Error != "" { t.Fatalf("check n3: %s", res.Error) }
    if !res.Freshest || !res.Tied {
        t.Fatalf("n3 verdict freshest=%v tied=%v, want a freshest tie", res.Freshest, res.Tied)
    }

    // Same verdict from the other side of the tie.
    res2, err := cli.PostCheck(ctx, "127.0.0.1:18946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check n2: %v", err) }
    if res2.Error != "" { t.Fatalf("check n2: %s", res2.Error) }
    if !res2.Freshest || !res2.Tied {
        t.Fatalf("n2 verdict freshest=%v tied=%v, want a freshest tie", res2.Freshest, res2.Tied)
    }

    behind, err := cli.PostCheck(ctx, "127.0.0.1:17946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check n1: %v", err) }
    if behind.Error != "" { t.Fatalf("check n1: %s", behind.Error) }
    if behind.Freshest || behind.Tied {
        t.Fatalf("n1 verdict freshest=%v tied=%v, want neither", behind.Freshest, behind.Tied)
    }
}

func TestSingleNode_NoPeersIsTriviallyFreshest(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    n1, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID:        "n1",
        SetName:       "rs0",
        MemberID:      0,
        VoteAddr:      "127.0.0.1:9521",
        MemBind:       "127.0.0.1:7946",
        AdminAddr:     "127.0.0.1:17946",
        DiscoveryKind: "static",
    })
    if err != nil { t.Fatalf("n1: %v", err) }
    defer n1.Close()

    cli := httpjson.NewClient(3 * time.Second)
    waitForMembers(t, ctx, cli, "127.0.0.1:17946", 1)

    res, err := cli.PostCheck(ctx, "127.0.0.1:17946", transport.CheckRequest{})
    if err != nil { t.Fatalf("check: %v", err) }
    if res.Error != "" { t.Fatalf("check: %s", res.Error) }
    if !res.Freshest || res.Tied {
        t.Fatalf("verdict freshest=%v tied=%v, want freshest", res.Freshest, res.Tied)
    }
    if res.Targets != 0 || res.Responses != 0 {
        t.Fatalf("lone node scattered to %d targets", res.Targets)
    }
}

// Helpers

func mustStartThreeNodes(t *testing.T, ctx context.Context) (n1, n2, n3 *node.Node) {
    t.Helper()
    c1, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID:        "n1",
        SetName:       "rs0",
        MemberID:      0,
        VoteAddr:      "127.0.0.1:9521",
        MemBind:       "127.0.0.1:7946",
        AdminAddr:     "127.0.0.1:17946",
        DiscoveryKind: "static",
        SeedsCSV:      "",
    })
    if err != nil { t.Fatalf("n1: %v", err) }

    c2, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID:        "n2",
        SetName:       "rs0",
        MemberID:      1,
        VoteAddr:      "127.0.0.1:9522",
        MemBind:       "127.0.0.1:8946",
        AdminAddr:     "127.0.0.1:18946",
        DiscoveryKind: "static",
        SeedsCSV:      "127.0.0.1:7946",
    })
    if err != nil { t.Fatalf("n2: %v", err) }

    c3, err := bootstrap.Run(ctx, bootstrap.Config{
        NodeID:        "n3",
        SetName:       "rs0",
        MemberID:      2,
        VoteAddr:      "127.0.0.1:9523",
        MemBind:       "127.0.0.1:9946",
        AdminAddr:     "127.0.0.1:19946",
        DiscoveryKind: "static",
        SeedsCSV:      "127.0.0.1:7946",
    })
    if err != nil { t.Fatalf("n3: %v", err) }
    return c1, c2, c3
}

var errNotYet = &temporaryError{}

type temporaryError struct{}

func (e *temporaryError) Error() string { return "not yet" }

func waitUntil(t *testing.T, timeout time.Duration, fn func() error) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    var last error
    for time.Now().Before(deadline) {
        if err := fn(); err == nil {
            return
        } else {
            last = err
        }
        time.Sleep(200 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for condition: %v", last)
}

func waitForMembers(t *testing.T, ctx context.Context, cli *httpjson.Client, addr string, want int) {
    t.Helper()
    waitUntil(t, 20*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, addr)
        if err != nil { return err }
        if len(s.Members) != want { return errNotYet }
        return nil
    })
}

func fetchStatus(ctx context.Context, cli *httpjson.Client, addr string) (status, error) {
    var s status
    b, err := cli.GetStatus(ctx, addr)
    if err != nil { return s, err }
    if err := json.Unmarshal(b, &s); err != nil { return s, err }
    return s, nil
}
