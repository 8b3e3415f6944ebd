package node

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-freshness/pkg/discovery"
    "github.com/amirimatin/go-freshness/pkg/freshness"
    "github.com/amirimatin/go-freshness/pkg/membership"
    "github.com/amirimatin/go-freshness/pkg/state"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// DefaultCheckTimeout bounds a freshness round when Options.CheckTimeout
// is zero.
const DefaultCheckTimeout = 10 * time.Second

// Options carries dependency-injected components and runtime configuration
// used to assemble the node facade. Instances are typically produced from
// bootstrap.Config.
type Options struct {
    // NodeID is the unique identifier of this node in the gossip layer.
    NodeID string
    // SetName is the replica set every freshness round runs against.
    SetName string
    // MemberID is this node's id in the replica set configuration.
    MemberID int64
    // ConfigVersion is the configuration version this node asserts in
    // rounds it starts and answers. Operators bump it on reconfiguration.
    ConfigVersion int64
    // VoteAddr is the address peers dial for freshness commands. It is
    // gossiped through membership metadata so the set view stays in step
    // with the gossip view.
    VoteAddr string

    // Messenger carries outbound freshness commands. Required.
    Messenger transport.Messenger
    // Membership provides the live replica set view. Required.
    Membership membership.Membership
    // Discovery provides seed nodes for the membership join. Optional.
    Discovery discovery.Discovery
    // VoteServer answers freshness commands from peers. Optional; a node
    // without one can still run rounds but cannot be polled by others.
    VoteServer transport.VoteServer
    // AdminServer exposes status and round control to operators. Optional.
    AdminServer transport.AdminServer
    // Store persists the last applied optime across restarts. Optional;
    // without one the optime lives in memory only.
    Store state.OpTimeStore
    // Policy may veto candidates for application reasons. Optional.
    Policy freshness.VetoPolicy
    // Logger receives operational messages. Required.
    Logger *log.Logger
    // CheckTimeout bounds one freshness round. Zero means
    // DefaultCheckTimeout.
    CheckTimeout time.Duration
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.NodeID == "" {
        return errors.New("node: empty NodeID")
    }
    if o.SetName == "" {
        return errors.New("node: empty SetName")
    }
    if o.MemberID < 0 {
        return errors.New("node: negative MemberID")
    }
    if o.ConfigVersion < 1 {
        return errors.New("node: ConfigVersion must be at least 1")
    }
    if o.VoteAddr == "" {
        return errors.New("node: empty VoteAddr")
    }
    if o.Messenger == nil {
        return errors.New("node: nil Messenger")
    }
    if o.Membership == nil {
        return errors.New("node: nil Membership")
    }
    if o.Logger == nil {
        return errors.New("node: nil Logger")
    }
    return nil
}
