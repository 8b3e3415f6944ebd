package node

import (
    "time"

    "github.com/amirimatin/go-freshness/pkg/membership"
    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/replset"
)

// Status is a high-level, JSON-serializable snapshot of one node suitable
// for the admin status endpoint and tooling.
type Status struct {
    // NodeID is this node's gossip identifier.
    NodeID string
    // SetName is the replica set the node votes in.
    SetName string
    // MemberID is the node's id in the replica set configuration.
    MemberID int64
    // ConfigVersion is the configuration version the node asserts.
    ConfigVersion int64
    // VoteAddr is the address answering freshness commands.
    VoteAddr string
    // LastApplied is the node's current last applied optime.
    LastApplied optime.OpTime
    // Config is the replica set view synthesized from gossip metadata.
    Config replset.Config
    // Members lists the raw membership view including gossip metadata.
    Members []membership.MemberInfo
    // LastRound is the most recent round verdict, if any round has run.
    LastRound *RoundResult
    // HealthScore is the gossip layer's local health score (0 is best,
    // -1 when the layer is not running or does not report one).
    HealthScore int
}

// RoundResult summarizes one finished freshness round started by this
// node.
type RoundResult struct {
    // RoundID identifies the round in logs and watch streams.
    RoundID string
    // StartedAt is when the round was scattered.
    StartedAt time.Time
    // Duration is the time from scatter to verdict.
    Duration time.Duration
    // LastApplied is the optime the candidate asserted for the round.
    LastApplied optime.OpTime
    // Freshest reports whether no peer was strictly ahead and none vetoed.
    Freshest bool
    // Tied reports whether some peer matched the candidate's optime.
    Tied bool
    // VetoReason carries the first veto message when a peer vetoed.
    VetoReason string
    // Responses counts peer outcomes consumed, delivery failures included.
    Responses int
    // Targets counts the peers the round was scattered to.
    Targets int
}

// outcome maps the verdict to a short word used as the rounds metric
// label and in log lines.
func (r *RoundResult) outcome() string {
    switch {
    case r.VetoReason != "":
        return "vetoed"
    case !r.Freshest:
        return "not_freshest"
    case r.Tied:
        return "tied"
    default:
        return "freshest"
    }
}
