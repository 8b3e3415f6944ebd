package membership

import (
    "context"
    "strconv"
    "time"
)

// Meta keys gossiped with each node. The vote layer reads them to build
// the replica set view without a separate configuration channel.
const (
    // MetaVoteAddr is the address peers use for freshness commands.
    MetaVoteAddr = "vote"
    // MetaAdminAddr is the address of the node's admin HTTP endpoint.
    MetaAdminAddr = "admin"
    // MetaMemberID is the node's replica set member id, decimal encoded.
    MetaMemberID = "mid"
)

// MemberInfo describes a replica set node as observed by the gossip layer.
// Meta carries auxiliary data such as the vote and admin addresses.
type MemberInfo struct {
    ID   string
    Addr string
    Meta map[string]string
}

// VoteAddr returns the member's freshness command address, if gossiped.
func (m MemberInfo) VoteAddr() string { return m.Meta[MetaVoteAddr] }

// AdminAddr returns the member's admin endpoint address, if gossiped.
func (m MemberInfo) AdminAddr() string { return m.Meta[MetaAdminAddr] }

// MemberID returns the member's replica set id. ok is false when the
// member gossips no id or a malformed one.
func (m MemberInfo) MemberID() (int64, bool) {
    raw, present := m.Meta[MetaMemberID]
    if !present { return 0, false }
    id, err := strconv.ParseInt(raw, 10, 64)
    if err != nil { return 0, false }
    return id, true
}

type EventType string

const (
    // EventJoin indicates a member joined or became visible.
    EventJoin   EventType = "join"
    // EventLeave indicates a member left the replica set.
    EventLeave  EventType = "leave"
    // EventUpdate indicates a member refreshed its gossiped metadata.
    EventUpdate EventType = "update"
    // EventFailed indicates membership marked the node as failed/unreachable.
    EventFailed EventType = "failed"
)

// Event is the translated membership change notification.
type Event struct {
    Type   EventType
    Member MemberInfo
    At     time.Time
}

// Membership is the abstraction over the underlying gossip/failure-detection
// layer. It is responsible for peer discovery, join/leave and event delivery.
type Membership interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() MemberInfo
    Members() []MemberInfo
    Events() <-chan Event
    Leave() error
    Stop() error
}
