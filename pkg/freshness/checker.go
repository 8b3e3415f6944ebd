// Package freshness implements the pre-election freshness vote of a
// replica set: before standing for election a candidate asks every
// other member for its last applied optime and stands down when any
// peer is fresher, vetoes, or answers with garbage. Peers that cannot
// be reached never count against the candidate.
//
// Checker drives the candidate side of one round; Responder answers
// rounds started by other members. Both speak document.Doc commands so
// any transport.Messenger can carry them.
package freshness

import (
    "errors"
    "fmt"
    "log"
    "sync"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/executor"
    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/replset"
    "github.com/amirimatin/go-freshness/pkg/scatter"
)

// Checker runs one freshness round for a candidate. A Checker is
// one-shot: create it, call Start once, wait on the returned event,
// then read Results.
type Checker struct {
    mu     sync.Mutex
    alg    *Algorithm
    runner *scatter.Runner
    logger *log.Logger
}

// NewChecker returns an idle checker logging through logger.
func NewChecker(logger *log.Logger) *Checker {
    return &Checker{logger: logger}
}

// Start broadcasts the freshness question: lastApplied is the
// candidate's own optime, cfg the set it runs against, selfIndex the
// candidate's entry in cfg.Members and targets the peers to poll. The
// returned event is signaled once the verdict can no longer change,
// including when the executor shuts down mid-round.
func (c *Checker) Start(exec *executor.Executor, lastApplied optime.OpTime, cfg replset.Config, selfIndex int, targets []string) (*executor.Event, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    if selfIndex < 0 || selfIndex >= len(cfg.Members) {
        return nil, fmt.Errorf("freshness: self index %d out of range", selfIndex)
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.runner != nil { return nil, errors.New("freshness: checker already started") }

    c.alg = NewAlgorithm(lastApplied, len(targets), c.logger)
    c.runner = scatter.NewRunner(c.alg)

    self := cfg.Members[selfIndex]
    cmd := document.Doc{
        CommandName: 1,
        fieldSet:    cfg.Name,
        fieldOpTime: lastApplied.AsTime(),
        fieldWho:    self.Host,
        fieldCfgVer: cfg.Version,
        fieldID:     self.ID,
    }
    return c.runner.Start(exec, func(target string) document.Doc { return cmd }, targets)
}

// Results returns the verdict: whether the candidate saw itself
// freshest and whether some peer tied its optime. Valid once the Start
// event has signaled; before Start it reports the initial verdict.
func (c *Checker) Results() (freshest, tied bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.alg == nil { return true, false }
    return c.alg.IsFreshest(), c.alg.IsTiedForFreshest()
}

// Processed returns how many peer outcomes the round consumed.
func (c *Checker) Processed() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.alg == nil { return 0 }
    return c.alg.ResponsesProcessed()
}

// VetoReason returns the first veto reason, if the candidate was vetoed.
func (c *Checker) VetoReason() (string, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.alg == nil { return "", false }
    return c.alg.VetoReason()
}
