// Package executor runs scheduled callbacks on a single serialized
// stream and owns the goroutines behind outbound freshness commands.
// Response-processing code scheduled here never needs its own locking:
// at most one callback runs at any time, in FIFO order.
package executor

import (
    "context"
    "errors"
    "log"
    "sync"

    "github.com/amirimatin/go-freshness/pkg/internal/logutil"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

var (
    // ErrShutdown is returned by schedule calls made after Shutdown.
    ErrShutdown = errors.New("executor: shutting down")

    // ErrCallbackCanceled is delivered to callbacks whose work was
    // canceled or whose executor shut down before the outcome arrived.
    ErrCallbackCanceled = errors.New("executor: callback canceled")
)

// Options configures an Executor.
type Options struct {
    // Messenger delivers remote freshness commands. Required.
    Messenger transport.Messenger
    // Logger receives executor diagnostics. Optional.
    Logger *log.Logger
}

// Validate returns an error if required options are missing.
func (o Options) Validate() error {
    if o.Messenger == nil { return errors.New("executor: options.Messenger is nil") }
    return nil
}

// Event is a one-shot completion latch handed out by MakeEvent.
type Event struct {
    once sync.Once
    c    chan struct{}
}

// Signal marks the event as signaled. Further calls are no-ops.
func (e *Event) Signal() { e.once.Do(func() { close(e.c) }) }

// Done returns a channel closed once the event has been signaled.
func (e *Event) Done() <-chan struct{} { return e.c }

// Wait blocks until the event has been signaled.
func (e *Event) Wait() { <-e.c }

// Handle identifies one scheduled callback.
type Handle struct {
    mu       sync.Mutex
    canceled bool
    cancel   context.CancelFunc // set for remote commands
    done     chan struct{}
}

// Cancel asks for the callback to run with ErrCallbackCanceled instead
// of its normal outcome and aborts the remote send if one is in flight.
// Canceling a callback that already ran is a no-op.
func (h *Handle) Cancel() {
    h.mu.Lock()
    h.canceled = true
    cancel := h.cancel
    h.mu.Unlock()
    if cancel != nil { cancel() }
}

// Wait blocks until the callback has run.
func (h *Handle) Wait() { <-h.done }

func (h *Handle) isCanceled() bool {
    h.mu.Lock()
    defer h.mu.Unlock()
    return h.canceled
}

type task struct {
    h  *Handle
    fn func(err error)
}

// Executor owns the callback stream. Create with New, launch with
// Start, end with Shutdown. Every scheduled callback runs exactly once,
// with a nil error or with ErrCallbackCanceled.
type Executor struct {
    opts Options

    baseCtx    context.Context
    baseCancel context.CancelFunc

    mu      sync.Mutex
    cond    *sync.Cond
    queue   []*task
    started bool
    down    bool
    netOut  int // remote sends whose outcome has not been queued yet

    donec     chan struct{}
    donecOnce sync.Once
}

// New builds an Executor from options.
func New(opts Options) (*Executor, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    baseCtx, baseCancel := context.WithCancel(context.Background())
    e := &Executor{
        opts:       opts,
        baseCtx:    baseCtx,
        baseCancel: baseCancel,
        donec:      make(chan struct{}),
    }
    e.cond = sync.NewCond(&e.mu)
    return e, nil
}

// Start launches the callback stream. Canceling ctx is equivalent to
// calling Shutdown.
func (e *Executor) Start(ctx context.Context) error {
    e.mu.Lock()
    if e.started {
        e.mu.Unlock()
        return errors.New("executor: already started")
    }
    if e.down {
        e.mu.Unlock()
        return ErrShutdown
    }
    e.started = true
    e.mu.Unlock()

    go e.run()
    go func() {
        select {
        case <-ctx.Done():
            e.Shutdown()
        case <-e.donec:
        }
    }()
    return nil
}

// ScheduleWork queues fn on the callback stream. fn receives a nil
// error normally and ErrCallbackCanceled when the executor shut down or
// the handle was canceled before fn ran.
func (e *Executor) ScheduleWork(fn func(err error)) (*Handle, error) {
    h := &Handle{done: make(chan struct{})}
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.down { return nil, ErrShutdown }
    e.queue = append(e.queue, &task{h: h, fn: fn})
    e.cond.Broadcast()
    return h, nil
}

// ScheduleRemoteCommand sends req through the Messenger on its own
// goroutine and queues fn with the outcome. Delivery failures are not
// errors at this level: they arrive in resp.Err so response processing
// can count them against the round. fn sees a non-nil err only when the
// command was canceled or the executor shut down first.
func (e *Executor) ScheduleRemoteCommand(req transport.Request, fn func(resp transport.Response, err error)) (*Handle, error) {
    e.mu.Lock()
    if e.down {
        e.mu.Unlock()
        return nil, ErrShutdown
    }
    ctx, cancel := context.WithCancel(e.baseCtx)
    h := &Handle{cancel: cancel, done: make(chan struct{})}
    e.netOut++
    e.mu.Unlock()

    go func() {
        defer cancel()
        doc, sendErr := e.opts.Messenger.Send(ctx, req.Target, req.Command)
        resp := transport.Response{Doc: doc, Err: sendErr}
        e.mu.Lock()
        e.netOut--
        e.queue = append(e.queue, &task{h: h, fn: func(err error) { fn(resp, err) }})
        e.cond.Broadcast()
        e.mu.Unlock()
    }()
    return h, nil
}

// MakeEvent returns a fresh, unsignaled completion event.
func (e *Executor) MakeEvent() *Event { return &Event{c: make(chan struct{})} }

// Shutdown stops accepting new work, cancels outstanding remote
// commands and drains queued callbacks with ErrCallbackCanceled. It
// returns without waiting; Done is closed once the stream has ended.
func (e *Executor) Shutdown() {
    e.mu.Lock()
    if e.down {
        e.mu.Unlock()
        return
    }
    e.down = true
    if e.netOut > 0 {
        logutil.Warnf(e.opts.Logger, "executor: canceling %d outstanding remote commands on shutdown", e.netOut)
    }
    started := e.started
    e.cond.Broadcast()
    e.mu.Unlock()

    e.baseCancel()
    if !started {
        e.donecOnce.Do(func() { close(e.donec) })
    }
}

// Done returns a channel closed after the callback stream has fully
// drained following Shutdown.
func (e *Executor) Done() <-chan struct{} { return e.donec }

func (e *Executor) run() {
    for {
        e.mu.Lock()
        for len(e.queue) == 0 && !(e.down && e.netOut == 0) {
            e.cond.Wait()
        }
        if len(e.queue) == 0 {
            // down and no outcomes left to deliver
            e.mu.Unlock()
            e.donecOnce.Do(func() { close(e.donec) })
            return
        }
        t := e.queue[0]
        e.queue = e.queue[1:]
        down := e.down
        e.mu.Unlock()

        var err error
        if down || t.h.isCanceled() { err = ErrCallbackCanceled }
        t.fn(err)
        close(t.h.done)
    }
}
