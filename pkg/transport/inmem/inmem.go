// Package inmem provides a scriptable in-memory Messenger for tests and
// in-process demos. Replies are scripted per target; unscripted targets
// are unreachable. Deliveries can be held back and released to exercise
// cancellation paths.
package inmem

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// ErrNoRoute is returned for targets without a scripted reply.
var ErrNoRoute = errors.New("inmem: no route to target")

// HandlerFunc computes a reply from a received command.
type HandlerFunc func(ctx context.Context, cmd document.Doc) (document.Doc, error)

// SentCommand records one delivery attempt.
type SentCommand struct {
    Target  string
    Command document.Doc
}

// Net is an in-memory network shared by a set of logical endpoints.
type Net struct {
    mu       sync.Mutex
    handlers map[string]HandlerFunc
    holds    map[string]chan struct{}
    log      []SentCommand
    canceled int
    closed   bool
}

// NewNet returns an empty network. Every target is unreachable until a
// handler or reply is scripted for it.
func NewNet() *Net {
    return &Net{
        handlers: make(map[string]HandlerFunc),
        holds:    make(map[string]chan struct{}),
    }
}

// Handle routes commands for target to h.
func (n *Net) Handle(target string, h HandlerFunc) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.handlers[target] = h
}

// Respond scripts a fixed reply document for target.
func (n *Net) Respond(target string, reply document.Doc) {
    n.Handle(target, func(ctx context.Context, cmd document.Doc) (document.Doc, error) {
        return reply, nil
    })
}

// Fail scripts a delivery failure for target.
func (n *Net) Fail(target string, err error) {
    n.Handle(target, func(ctx context.Context, cmd document.Doc) (document.Doc, error) {
        return nil, err
    })
}

// Hold delays deliveries to target until Release. A canceled send
// context aborts the wait.
func (n *Net) Hold(target string) {
    n.mu.Lock()
    defer n.mu.Unlock()
    if _, ok := n.holds[target]; !ok {
        n.holds[target] = make(chan struct{})
    }
}

// Release lets held deliveries to target proceed.
func (n *Net) Release(target string) {
    n.mu.Lock()
    defer n.mu.Unlock()
    if ch, ok := n.holds[target]; ok {
        delete(n.holds, target)
        close(ch)
    }
}

// Sent returns a copy of the delivery log in send order.
func (n *Net) Sent() []SentCommand {
    n.mu.Lock()
    defer n.mu.Unlock()
    out := make([]SentCommand, len(n.log))
    copy(out, n.log)
    return out
}

// Canceled reports how many deliveries were aborted by their context.
func (n *Net) Canceled() int {
    n.mu.Lock()
    defer n.mu.Unlock()
    return n.canceled
}

// Send implements transport.Messenger.
func (n *Net) Send(ctx context.Context, target string, cmd document.Doc) (document.Doc, error) {
    n.mu.Lock()
    if n.closed {
        n.mu.Unlock()
        return nil, errors.New("inmem: network closed")
    }
    n.log = append(n.log, SentCommand{Target: target, Command: cmd})
    hold := n.holds[target]
    h := n.handlers[target]
    n.mu.Unlock()

    if hold != nil {
        select {
        case <-hold:
        case <-ctx.Done():
            n.mu.Lock()
            n.canceled++
            n.mu.Unlock()
            return nil, ctx.Err()
        }
    }
    if err := ctx.Err(); err != nil {
        n.mu.Lock()
        n.canceled++
        n.mu.Unlock()
        return nil, err
    }
    if h == nil {
        return nil, fmt.Errorf("%w: %s", ErrNoRoute, target)
    }
    return h(ctx, cmd)
}

// Close marks the network closed; further sends fail.
func (n *Net) Close() error {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.closed = true
    return nil
}

var _ transport.Messenger = (*Net)(nil)
