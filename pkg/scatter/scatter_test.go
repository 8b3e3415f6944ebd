package scatter

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/executor"
    "github.com/amirimatin/go-freshness/pkg/transport"
    "github.com/amirimatin/go-freshness/pkg/transport/inmem"
)

// countingAlg is sufficient once quota outcomes have been processed.
type countingAlg struct {
    mu        sync.Mutex
    quota     int
    processed int
    failures  int
    order     []string
}

func (a *countingAlg) ProcessResponse(target string, resp transport.Response) {
    a.mu.Lock()
    defer a.mu.Unlock()
    a.processed++
    if resp.Failed() { a.failures++ }
    a.order = append(a.order, target)
}

func (a *countingAlg) HasReceivedSufficientResponses() bool {
    a.mu.Lock()
    defer a.mu.Unlock()
    return a.processed >= a.quota
}

func (a *countingAlg) snapshot() (processed, failures int) {
    a.mu.Lock()
    defer a.mu.Unlock()
    return a.processed, a.failures
}

func newExec(t *testing.T, net *inmem.Net) *executor.Executor {
    t.Helper()
    e, err := executor.New(executor.Options{Messenger: net})
    if err != nil { t.Fatalf("executor: %v", err) }
    if err := e.Start(context.Background()); err != nil { t.Fatalf("start executor: %v", err) }
    return e
}

func reqFn(target string) document.Doc { return document.Doc{"q": 1} }

func awaitEvent(t *testing.T, ev *executor.Event) {
    t.Helper()
    select {
    case <-ev.Done():
    case <-time.After(5 * time.Second):
        t.Fatalf("round never completed")
    }
}

func waitUntil(t *testing.T, d time.Duration, f func() bool) {
    t.Helper()
    deadline := time.Now().Add(d)
    for time.Now().Before(deadline) {
        if f() { return }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("condition not reached within %v", d)
}

func TestAllTargetsRespond(t *testing.T) {
    net := inmem.NewNet()
    targets := []string{"h1:27017", "h2:27017", "h3:27017"}
    for _, h := range targets {
        net.Respond(h, document.Doc{"ok": 1})
    }
    e := newExec(t, net)
    defer e.Shutdown()

    alg := &countingAlg{quota: len(targets)}
    ev, err := NewRunner(alg).Start(e, reqFn, targets)
    if err != nil { t.Fatalf("start: %v", err) }
    awaitEvent(t, ev)

    processed, failures := alg.snapshot()
    if processed != 3 || failures != 0 {
        t.Fatalf("processed=%d failures=%d, want 3/0", processed, failures)
    }
    if sent := net.Sent(); len(sent) != 3 {
        t.Fatalf("sent %d commands, want 3", len(sent))
    }
}

func TestZeroTargetsSignalsImmediately(t *testing.T) {
    net := inmem.NewNet()
    e := newExec(t, net)
    defer e.Shutdown()

    alg := &countingAlg{quota: 0}
    ev, err := NewRunner(alg).Start(e, reqFn, nil)
    if err != nil { t.Fatalf("start: %v", err) }

    select {
    case <-ev.Done():
    default:
        t.Fatalf("event not signaled for empty target list")
    }
    if sent := net.Sent(); len(sent) != 0 {
        t.Fatalf("commands sent with no targets: %#v", sent)
    }
}

func TestEarlyTerminationCancelsOutstanding(t *testing.T) {
    net := inmem.NewNet()
    net.Respond("h1:27017", document.Doc{"ok": 1})
    net.Respond("h2:27017", document.Doc{"ok": 1})
    net.Respond("h3:27017", document.Doc{"ok": 1})
    net.Hold("h2:27017")
    net.Hold("h3:27017")
    e := newExec(t, net)
    defer e.Shutdown()

    alg := &countingAlg{quota: 1}
    ev, err := NewRunner(alg).Start(e, reqFn, []string{"h1:27017", "h2:27017", "h3:27017"})
    if err != nil { t.Fatalf("start: %v", err) }
    awaitEvent(t, ev)

    // The two held deliveries must be aborted, not waited for.
    waitUntil(t, 5*time.Second, func() bool { return net.Canceled() == 2 })

    processed, _ := alg.snapshot()
    if processed != 1 {
        t.Fatalf("late outcomes leaked into the algorithm: processed=%d", processed)
    }
}

func TestFailuresCountTowardCompletion(t *testing.T) {
    net := inmem.NewNet()
    net.Respond("h1:27017", document.Doc{"ok": 1})
    // h2 is unscripted and therefore unreachable
    e := newExec(t, net)
    defer e.Shutdown()

    alg := &countingAlg{quota: 2}
    ev, err := NewRunner(alg).Start(e, reqFn, []string{"h1:27017", "h2:27017"})
    if err != nil { t.Fatalf("start: %v", err) }
    awaitEvent(t, ev)

    processed, failures := alg.snapshot()
    if processed != 2 || failures != 1 {
        t.Fatalf("processed=%d failures=%d, want 2/1", processed, failures)
    }
}

func TestShutdownStillSignalsEvent(t *testing.T) {
    net := inmem.NewNet()
    net.Respond("h1:27017", document.Doc{"ok": 1})
    net.Respond("h2:27017", document.Doc{"ok": 1})
    net.Hold("h1:27017")
    net.Hold("h2:27017")
    e := newExec(t, net)

    alg := &countingAlg{quota: 2}
    ev, err := NewRunner(alg).Start(e, reqFn, []string{"h1:27017", "h2:27017"})
    if err != nil { t.Fatalf("start: %v", err) }

    e.Shutdown()
    awaitEvent(t, ev)

    processed, failures := alg.snapshot()
    if processed != 2 || failures != 2 {
        t.Fatalf("processed=%d failures=%d, want 2/2", processed, failures)
    }
}

func TestDuplicateOutcomesContributeOnce(t *testing.T) {
    alg := &countingAlg{quota: 10}
    r := NewRunner(alg)

    net := inmem.NewNet()
    e := newExec(t, net)
    defer e.Shutdown()
    if _, err := r.Start(e, reqFn, nil); err != nil { t.Fatalf("start: %v", err) }

    r.onOutcome("h1:27017", transport.Response{Doc: document.Doc{"ok": 1}}, nil)
    r.onOutcome("h1:27017", transport.Response{Doc: document.Doc{"ok": 1}}, nil)

    processed, _ := alg.snapshot()
    if processed != 1 {
        t.Fatalf("duplicate outcome processed twice: %d", processed)
    }
}

func TestStartTwiceFails(t *testing.T) {
    net := inmem.NewNet()
    e := newExec(t, net)
    defer e.Shutdown()

    r := NewRunner(&countingAlg{quota: 0})
    if _, err := r.Start(e, reqFn, nil); err != nil { t.Fatalf("first start: %v", err) }
    if _, err := r.Start(e, reqFn, nil); err == nil { t.Fatalf("second start accepted") }
}
