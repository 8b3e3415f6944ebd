// Package transport defines the wire-facing capabilities of a freshness
// node: the Messenger that carries freshness commands to peers, the vote
// server that answers them, and the admin surface used by operators.
// Concrete implementations live in the subpackages (grpc, httpjson,
// inmem); everything above this package depends on the interfaces only.
package transport

import (
    "context"

    "github.com/amirimatin/go-freshness/pkg/document"
)

// Request describes one outbound freshness command.
type Request struct {
    Target  string
    Command document.Doc
}

// Response carries the decoded reply for a Request, or the delivery
// error when the peer could not be reached in time.
type Response struct {
    Doc document.Doc
    Err error
}

// Failed reports whether the response is a delivery failure rather than
// a peer reply.
func (r Response) Failed() bool { return r.Err != nil }

// Messenger delivers freshness commands to peers. Send blocks until the
// peer replies, delivery fails, or ctx is done; a ctx error is returned
// as-is so callers can tell cancellation from peer trouble.
type Messenger interface {
    Send(ctx context.Context, target string, cmd document.Doc) (document.Doc, error)
    Close() error
}

// VoteHandler answers one inbound freshness command.
type VoteHandler func(ctx context.Context, cmd document.Doc) (document.Doc, error)

// VoteServer exposes the local member to freshness queries from peers.
type VoteServer interface {
    Start(ctx context.Context, handler VoteHandler) error
    Addr() string
    Stop(ctx context.Context) error
}

// RoundUpdate is the per-round summary streamed to watchers.
type RoundUpdate struct {
    Node      string `json:"node"`
    RoundID   string `json:"roundId"`
    Freshest  bool   `json:"freshest"`
    Tied      bool   `json:"tied"`
    Responses int    `json:"responses"`
    Targets   int    `json:"targets"`
    UnixMilli int64  `json:"unixMilli"`
}

// RoundBroadcaster is implemented by vote servers that can fan round
// results out to stream subscribers.
type RoundBroadcaster interface {
    BroadcastRound(u RoundUpdate) int
}
