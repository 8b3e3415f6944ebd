// Package scatter implements the scatter-gather round pattern used by
// freshness voting: broadcast one command to a set of targets, feed
// every terminal outcome to a policy object, and signal a completion
// event as soon as the policy has heard enough. Outstanding commands
// are canceled at that point instead of being waited for.
package scatter

import (
    "errors"
    "sync"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/executor"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Algorithm is the response-processing policy a Runner drives. The
// Runner serializes all calls, so implementations need no locking.
type Algorithm interface {
    // ProcessResponse records the terminal outcome for one target.
    // Delivery failures arrive with resp.Err set.
    ProcessResponse(target string, resp transport.Response)

    // HasReceivedSufficientResponses reports whether the round outcome
    // can no longer change. It must eventually return true once every
    // target has been processed.
    HasReceivedSufficientResponses() bool
}

// RequestFunc builds the command document sent to one target.
type RequestFunc func(target string) document.Doc

// Runner drives a single scatter-gather round. A Runner is one-shot:
// create it, call Start once, wait on the returned event.
type Runner struct {
    alg Algorithm

    mu       sync.Mutex
    ev       *executor.Event
    handles  []*executor.Handle
    seen     map[string]bool
    signaled bool
    started  bool
}

// NewRunner wraps alg for one round.
func NewRunner(alg Algorithm) *Runner {
    return &Runner{alg: alg, seen: make(map[string]bool)}
}

// Start broadcasts the round to targets over exec and returns the event
// that is signaled once the algorithm has received sufficient
// responses. Outstanding commands are canceled at that point and their
// late outcomes discarded. If the executor shuts down mid-round, the
// unanswered targets count as delivery failures, so the event is still
// signaled. With no targets the event is signaled before Start returns.
func (r *Runner) Start(exec *executor.Executor, reqFn RequestFunc, targets []string) (*executor.Event, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.started { return nil, errors.New("scatter: round already started") }
    r.started = true
    r.ev = exec.MakeEvent()

    if r.alg.HasReceivedSufficientResponses() {
        r.signaled = true
        r.ev.Signal()
        return r.ev, nil
    }
    for _, target := range targets {
        target := target
        req := transport.Request{Target: target, Command: reqFn(target)}
        h, err := exec.ScheduleRemoteCommand(req, func(resp transport.Response, cbErr error) {
            r.onOutcome(target, resp, cbErr)
        })
        if err != nil {
            // executor went down mid-broadcast
            r.note(target, transport.Response{Err: err})
            continue
        }
        r.handles = append(r.handles, h)
    }
    return r.ev, nil
}

// Event returns the completion event, or nil before Start.
func (r *Runner) Event() *executor.Event {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.ev
}

func (r *Runner) onOutcome(target string, resp transport.Response, cbErr error) {
    if cbErr != nil {
        resp = transport.Response{Err: cbErr}
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    r.note(target, resp)
}

// note requires r.mu. Outcomes after the signal and duplicate outcomes
// for one target are dropped.
func (r *Runner) note(target string, resp transport.Response) {
    if r.signaled || r.seen[target] { return }
    r.seen[target] = true
    r.alg.ProcessResponse(target, resp)
    if r.alg.HasReceivedSufficientResponses() {
        r.signaled = true
        for _, h := range r.handles {
            h.Cancel()
        }
        r.ev.Signal()
    }
}
