package node

import "errors"

var (
    ErrNotStarted      = errors.New("node: not started")
    ErrClosed          = errors.New("node: closed")
    ErrRoundInProgress = errors.New("node: freshness round already in progress")
    ErrNotInConfig     = errors.New("node: local member missing from vote configuration")
)
