package node

import (
    "context"
    "sync"
    "time"

    "github.com/amirimatin/go-freshness/pkg/membership"
    obsmetrics "github.com/amirimatin/go-freshness/pkg/observability/metrics"
    "github.com/amirimatin/go-freshness/pkg/optime"
)

type EventType string

const (
    EventRoundStarted   EventType = "round_started"
    EventRoundFinished  EventType = "round_finished"
    EventOpTimeAdvanced EventType = "optime_advanced"
    EventMemberJoin     EventType = "member_join"
    EventMemberLeave    EventType = "member_leave"
    EventMemberUpdate   EventType = "member_update"
    EventMemberFailed   EventType = "member_failed"
)

// Event is an application-consumable event describing node state changes.
// Only the fields relevant to an event type are populated; for
// EventRoundStarted the Round verdict fields are still zero.
type Event struct {
    Type   EventType
    At     time.Time
    Round  *RoundResult
    OpTime *optime.OpTime
    Member *membership.MemberInfo
}

// Subscribe returns a channel of events. The returned channel is buffered
// and closed automatically when ctx is done. Events may be dropped if the
// consumer is too slow (best-effort delivery) to avoid back-pressuring
// round processing.
func (n *Node) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    n.eb.add(ch)
    go func() {
        <-ctx.Done()
        n.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
            obsmetrics.WatchDropped.Inc()
        }
    }
    e.mu.Unlock()
}
