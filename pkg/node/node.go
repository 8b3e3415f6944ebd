// Package node assembles the freshness machinery into a small embeddable
// runtime: gossip membership supplies the replica set view, the executor
// and checker drive candidate rounds, the responder answers rounds
// started by peers, and optional vote/admin endpoints expose both sides
// on the network.
package node

import (
    "context"
    "encoding/json"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/amirimatin/go-freshness/pkg/executor"
    "github.com/amirimatin/go-freshness/pkg/freshness"
    "github.com/amirimatin/go-freshness/pkg/internal/logutil"
    "github.com/amirimatin/go-freshness/pkg/membership"
    obsmetrics "github.com/amirimatin/go-freshness/pkg/observability/metrics"
    "github.com/amirimatin/go-freshness/pkg/observability/tracing"
    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/replset"
    "github.com/amirimatin/go-freshness/pkg/state"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Facade exposes the high-level API for consumers embedding a freshness
// node.
type Facade interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    CheckNow(ctx context.Context) (*RoundResult, error)
    SetLastApplied(at optime.OpTime) error
    LastApplied() optime.OpTime
    Status(ctx context.Context) (*Status, error)
    Subscribe(ctx context.Context) <-chan Event
    Stop(ctx context.Context) error
}

// Node is the concrete implementation of the Facade. It wires together
// membership, the freshness checker/responder pair and the vote and admin
// endpoints to provide pre-election freshness voting for a replica set
// member.
type Node struct {
    opts Options
    mu   sync.RWMutex
    run  struct {
        started bool
        closed  bool
    }
    lastApplied optime.OpTime
    lastRound   *RoundResult

    exec  *executor.Executor
    resp  *freshness.Responder
    mem   membership.Membership
    votes transport.VoteServer
    admin transport.AdminServer
    store state.OpTimeStore
    eb    eventBus

    round struct {
        mu         sync.Mutex
        inProgress bool
    }
}

// New constructs a new Node from validated options. It loads the persisted
// optime but performs no network activity; call Start to launch the node.
func New(ctx context.Context, opts Options) (*Node, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    n := &Node{opts: opts, mem: opts.Membership, votes: opts.VoteServer, admin: opts.AdminServer, store: opts.Store}
    if n.store != nil {
        at, err := n.store.Load()
        if err != nil { return nil, err }
        n.lastApplied = at
    }
    resp, err := freshness.NewResponder(freshness.ResponderOptions{
        Self:        replset.Member{ID: opts.MemberID, Host: opts.VoteAddr},
        Config:      n.voteConfig,
        LastApplied: n.LastApplied,
        Policy:      opts.Policy,
        Logger:      opts.Logger,
    })
    if err != nil { return nil, err }
    n.resp = resp
    exec, err := executor.New(executor.Options{Messenger: opts.Messenger, Logger: opts.Logger})
    if err != nil { return nil, err }
    n.exec = exec
    return n, nil
}

// Close is a convenience alias for Stop with a background context.
func (n *Node) Close() error {
    return n.Stop(context.Background())
}

// Start launches the executor, the vote endpoint, membership (joining any
// discovered seeds) and the admin endpoint, then begins forwarding
// membership events to subscribers. The vote endpoint comes up before the
// node gossips its address so peers never dial into the void.
func (n *Node) Start(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed {
        return ErrClosed
    }
    if n.run.started {
        return nil
    }
    n.run.started = true
    // Register metrics once
    obsmetrics.Register()

    if err := n.exec.Start(ctx); err != nil { return err }

    if n.votes != nil {
        if err := n.votes.Start(ctx, n.resp.Answer); err != nil { return err }
        logutil.Infof(n.opts.Logger, "vote endpoint listening at %s", n.votes.Addr())
    }

    if err := n.mem.Start(ctx); err != nil { return err }
    if n.opts.Discovery != nil {
        if seeds := n.opts.Discovery.Seeds(); len(seeds) > 0 {
            logutil.Infof(n.opts.Logger, "joining membership seeds: %v", seeds)
            _ = n.mem.Join(seeds)
        }
    }
    obsmetrics.Members.Set(float64(len(n.mem.Members())))
    go n.membershipEventsLoop(ctx)

    if n.admin != nil {
        statusFn := func(ctx context.Context) ([]byte, error) { return n.statusJSON(ctx) }
        checkFn := func(ctx context.Context, req transport.CheckRequest) (transport.CheckResult, error) { return n.handleCheck(ctx, req) }
        advanceFn := func(ctx context.Context, req transport.AdvanceRequest) (transport.AdvanceResult, error) { return n.handleAdvance(ctx, req) }
        if err := n.admin.Start(ctx, statusFn, checkFn, advanceFn); err != nil { return err }
        logutil.Infof(n.opts.Logger, "admin endpoint listening at %s (status/metrics/healthz)", n.admin.Addr())
    }
    return nil
}

// Join adds gossip seeds after startup, for deployments where peers become
// known late.
func (n *Node) Join(seeds []string) error {
    n.mu.RLock()
    started, closed := n.run.started, n.run.closed
    n.mu.RUnlock()
    if closed { return ErrClosed }
    if !started { return ErrNotStarted }
    return n.mem.Join(seeds)
}

// CheckNow runs one freshness round against the current membership view
// and returns the verdict. Rounds are serialized; a second call while one
// is in flight returns ErrRoundInProgress. When ctx or the configured
// timeout expires first, the round keeps draining on the executor and its
// late verdict is discarded.
func (n *Node) CheckNow(ctx context.Context) (*RoundResult, error) {
    n.mu.RLock()
    started, closed := n.run.started, n.run.closed
    n.mu.RUnlock()
    if closed { return nil, ErrClosed }
    if !started { return nil, ErrNotStarted }

    n.round.mu.Lock()
    if n.round.inProgress {
        n.round.mu.Unlock()
        return nil, ErrRoundInProgress
    }
    n.round.inProgress = true
    n.round.mu.Unlock()
    defer func() {
        n.round.mu.Lock()
        n.round.inProgress = false
        n.round.mu.Unlock()
    }()

    ctx, end := tracing.StartSpan(ctx, "node.check")
    defer end()

    cfg := n.voteConfig()
    selfIndex := -1
    for i, m := range cfg.Members {
        if m.ID == n.opts.MemberID && m.Host == n.opts.VoteAddr { selfIndex = i }
    }
    if selfIndex < 0 {
        // Another member gossiped our id with a different vote address.
        return nil, ErrNotInConfig
    }
    targets := cfg.Peers(selfIndex)
    last := n.LastApplied()
    roundID := uuid.NewString()

    timeout := n.opts.CheckTimeout
    if timeout <= 0 { timeout = DefaultCheckTimeout }

    obsmetrics.RoundsStarted.Inc()
    startAt := time.Now()
    logutil.Infof(n.opts.Logger, "freshness round %s: asking %d peers, last applied %s", roundID, len(targets), last)
    n.eb.publish(Event{Type: EventRoundStarted, At: startAt, Round: &RoundResult{
        RoundID: roundID, StartedAt: startAt, LastApplied: last, Targets: len(targets),
    }})

    checker := freshness.NewChecker(n.opts.Logger)
    ev, err := checker.Start(n.exec, last, cfg, selfIndex, targets)
    if err != nil {
        obsmetrics.Rounds.WithLabelValues("error").Inc()
        return nil, err
    }
    cctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    select {
    case <-ev.Done():
    case <-cctx.Done():
        obsmetrics.Rounds.WithLabelValues("timeout").Inc()
        return nil, fmt.Errorf("node: freshness round %s: %w", roundID, cctx.Err())
    }

    freshest, tied := checker.Results()
    res := &RoundResult{
        RoundID:     roundID,
        StartedAt:   startAt,
        Duration:    time.Since(startAt),
        LastApplied: last,
        Freshest:    freshest,
        Tied:        tied,
        Responses:   checker.Processed(),
        Targets:     len(targets),
    }
    if reason, vetoed := checker.VetoReason(); vetoed {
        res.VetoReason = reason
    }
    obsmetrics.Rounds.WithLabelValues(res.outcome()).Inc()
    obsmetrics.RoundDuration.Observe(res.Duration.Seconds())
    logutil.Infof(n.opts.Logger, "freshness round %s: %s (%d/%d answered in %s)",
        roundID, res.outcome(), res.Responses, res.Targets, res.Duration.Round(time.Millisecond))

    n.mu.Lock()
    n.lastRound = res
    n.mu.Unlock()
    n.eb.publish(Event{Type: EventRoundFinished, At: time.Now(), Round: res})
    n.broadcastRound(res)
    return res, nil
}

// SetLastApplied records a newer last applied optime, persisting it when a
// store is configured. Optimes never move backwards; an older value is
// rejected and an equal one is a no-op.
func (n *Node) SetLastApplied(at optime.OpTime) error {
    n.mu.Lock()
    if n.run.closed {
        n.mu.Unlock()
        return ErrClosed
    }
    cur := n.lastApplied
    if at.Before(cur) {
        n.mu.Unlock()
        return fmt.Errorf("node: optime %s is behind %s", at, cur)
    }
    n.lastApplied = at
    n.mu.Unlock()
    if at.Equal(cur) {
        return nil
    }
    if n.store != nil {
        if err := n.store.Save(at); err != nil { return err }
    }
    o := at
    n.eb.publish(Event{Type: EventOpTimeAdvanced, At: time.Now(), OpTime: &o})
    return nil
}

// LastApplied returns the node's current last applied optime.
func (n *Node) LastApplied() optime.OpTime {
    n.mu.RLock()
    defer n.mu.RUnlock()
    return n.lastApplied
}

// Status returns a snapshot of the node: identity, optime, the synthesized
// replica set view and the verdict of the most recent round.
func (n *Node) Status(ctx context.Context) (*Status, error) {
    n.mu.RLock()
    closed := n.run.closed
    last := n.lastApplied
    round := n.lastRound
    n.mu.RUnlock()
    if closed { return nil, ErrClosed }

    s := &Status{
        NodeID:        n.opts.NodeID,
        SetName:       n.opts.SetName,
        MemberID:      n.opts.MemberID,
        ConfigVersion: n.opts.ConfigVersion,
        VoteAddr:      n.opts.VoteAddr,
        LastApplied:   last,
        LastRound:     round,
        HealthScore:   -1,
    }
    if n.votes != nil && n.votes.Addr() != "" {
        s.VoteAddr = n.votes.Addr()
    }
    s.Members = n.mem.Members()
    s.Config = n.voteConfig()
    // Update metrics with current view
    obsmetrics.Members.Set(float64(len(s.Members)))
    if hr, ok := n.mem.(membership.HealthReporter); ok {
        s.HealthScore = hr.HealthScore()
    }
    return s, nil
}

// Stop gracefully shuts down the executor, both endpoints and membership,
// then closes the messenger and the optime store.
func (n *Node) Stop(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed {
        return nil
    }
    n.run.closed = true
    n.exec.Shutdown()
    select {
    case <-n.exec.Done():
    case <-time.After(2 * time.Second):
    }
    _ = n.opts.Messenger.Close()
    if n.admin != nil {
        _ = n.admin.Stop(ctx)
    }
    if n.votes != nil {
        _ = n.votes.Stop(ctx)
    }
    _ = n.mem.Leave()
    _ = n.mem.Stop()
    if n.store != nil {
        return n.store.Close()
    }
    return nil
}

func (n *Node) membershipEventsLoop(ctx context.Context) {
    evch := n.mem.Events()
    for {
        select {
        case <-ctx.Done():
            return
        case e, ok := <-evch:
            if !ok { return }
            obsmetrics.Members.Set(float64(len(n.mem.Members())))
            m := e.Member
            switch e.Type {
            case membership.EventJoin:
                logutil.Infof(n.opts.Logger, "member joined: id=%s addr=%s", m.ID, m.Addr)
                n.eb.publish(Event{Type: EventMemberJoin, At: e.At, Member: &m})
            case membership.EventUpdate:
                n.eb.publish(Event{Type: EventMemberUpdate, At: e.At, Member: &m})
            case membership.EventLeave:
                logutil.Infof(n.opts.Logger, "member left: id=%s addr=%s", m.ID, m.Addr)
                n.eb.publish(Event{Type: EventMemberLeave, At: e.At, Member: &m})
            case membership.EventFailed:
                logutil.Warnf(n.opts.Logger, "member failed: id=%s addr=%s", m.ID, m.Addr)
                n.eb.publish(Event{Type: EventMemberFailed, At: e.At, Member: &m})
            }
        }
    }
}

// voteConfig synthesizes the replica set snapshot from the current gossip
// view. Members that do not gossip vote metadata are left out; the local
// member is always present. Members are returned in ascending id order so
// every node scatters in the same order.
func (n *Node) voteConfig() replset.Config {
    cfg := replset.Config{Name: n.opts.SetName, Version: n.opts.ConfigVersion}
    seen := make(map[int64]bool)
    for _, m := range n.mem.Members() {
        mid, ok := m.MemberID()
        if !ok { continue }
        addr := m.VoteAddr()
        if addr == "" { continue }
        if seen[mid] { continue }
        seen[mid] = true
        cfg.Members = append(cfg.Members, replset.Member{ID: mid, Host: addr})
    }
    if !seen[n.opts.MemberID] {
        cfg.Members = append(cfg.Members, replset.Member{ID: n.opts.MemberID, Host: n.opts.VoteAddr})
    }
    sort.Slice(cfg.Members, func(i, j int) bool { return cfg.Members[i].ID < cfg.Members[j].ID })
    return cfg
}

// broadcastRound fans the verdict out to watch subscribers when the vote
// server supports streaming.
func (n *Node) broadcastRound(res *RoundResult) {
    b, ok := n.votes.(transport.RoundBroadcaster)
    if !ok {
        return
    }
    b.BroadcastRound(transport.RoundUpdate{
        Node:      n.opts.NodeID,
        RoundID:   res.RoundID,
        Freshest:  res.Freshest,
        Tied:      res.Tied,
        Responses: res.Responses,
        Targets:   res.Targets,
        UnixMilli: time.Now().UnixMilli(),
    })
}

func (n *Node) statusJSON(ctx context.Context) ([]byte, error) {
    st, err := n.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

func (n *Node) handleCheck(ctx context.Context, req transport.CheckRequest) (transport.CheckResult, error) {
    if req.TimeoutMillis > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMillis)*time.Millisecond)
        defer cancel()
    }
    res, err := n.CheckNow(ctx)
    if err != nil {
        return transport.CheckResult{Error: err.Error()}, nil
    }
    return transport.CheckResult{
        RoundID:   res.RoundID,
        Freshest:  res.Freshest,
        Tied:      res.Tied,
        Responses: res.Responses,
        Targets:   res.Targets,
        Millis:    res.Duration.Milliseconds(),
    }, nil
}

func (n *Node) handleAdvance(ctx context.Context, req transport.AdvanceRequest) (transport.AdvanceResult, error) {
    if err := n.SetLastApplied(optime.New(req.Secs, req.Inc)); err != nil {
        return transport.AdvanceResult{Error: err.Error()}, nil
    }
    cur := n.LastApplied()
    return transport.AdvanceResult{Secs: cur.Secs, Inc: cur.Inc}, nil
}
