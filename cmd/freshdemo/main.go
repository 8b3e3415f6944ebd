package main

import (
    "context"
    "flag"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/amirimatin/go-freshness/pkg/bootstrap"
    "github.com/amirimatin/go-freshness/pkg/node"
    "github.com/amirimatin/go-freshness/pkg/optime"
)

// freshdemo runs a three member replica set inside one process and lets
// each member run freshness rounds against the other two. Member 2 gets
// the most recent optime, so it should be the only one reporting itself
// freshest.
func main() {
    var (
        basePort = flag.Int("base-port", 9700, "first port of the demo port range")
        interval = flag.Duration("interval", 2*time.Second, "delay between demo rounds")
    )
    flag.Parse()

    ctx, cancel := signalContext()
    defer cancel()

    logger := log.Default()
    votePort := func(i int) int { return *basePort + i }
    gossipPort := func(i int) int { return *basePort + 100 + i }
    adminPort := func(i int) int { return *basePort + 200 + i }

    seeds := fmt.Sprintf("127.0.0.1:%d", gossipPort(0))
    nodes := make([]*node.Node, 0, 3)
    for i := 0; i < 3; i++ {
        cfg := bootstrap.Config{
            NodeID:    fmt.Sprintf("demo-%d", i),
            SetName:   "demo",
            MemberID:  int64(i),
            VoteAddr:  fmt.Sprintf("127.0.0.1:%d", votePort(i)),
            MemBind:   fmt.Sprintf("127.0.0.1:%d", gossipPort(i)),
            AdminAddr: fmt.Sprintf("127.0.0.1:%d", adminPort(i)),
            SeedsCSV:  seeds,
            Logger:    logger,
        }
        n, err := bootstrap.Run(ctx, cfg)
        if err != nil { log.Fatal(err) }
        defer n.Close()
        nodes = append(nodes, n)
    }

    go func(evch <-chan node.Event) {
        for e := range evch {
            switch {
            case e.Member != nil:
                fmt.Printf("event: %-15s id=%s addr=%s\n", e.Type, e.Member.ID, e.Member.Addr)
            case e.Round != nil:
                fmt.Printf("event: %-15s round=%s\n", e.Type, e.Round.RoundID)
            default:
                fmt.Printf("event: %-15s\n", e.Type)
            }
        }
    }(nodes[0].Subscribe(ctx))

    // Let gossip converge, then stagger the optimes so member 2 holds
    // the newest operation.
    time.Sleep(1 * time.Second)
    now := uint32(time.Now().Unix())
    for i, n := range nodes {
        if err := n.SetLastApplied(optime.New(now, uint32(i))); err != nil { log.Fatal(err) }
    }

    fmt.Println("freshdemo running three nodes. Press Ctrl+C to exit.")
    ticker := time.NewTicker(*interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            for i, n := range nodes {
                res, err := n.CheckNow(ctx)
                if err != nil {
                    fmt.Printf("member %d: check error: %v\n", i, err)
                    continue
                }
                fmt.Printf("member %d: freshest=%v tied=%v (%d/%d answered in %s)\n",
                    i, res.Freshest, res.Tied, res.Responses, res.Targets, res.Duration.Round(time.Millisecond))
            }
        }
    }
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
