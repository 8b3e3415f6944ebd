package freshness

import (
    "log"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/internal/logutil"
    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/scatter"
    "github.com/amirimatin/go-freshness/pkg/transport"
)

// CommandName keys the freshness command and names it in diagnostics.
const CommandName = "freshnessCheck"

// Field names shared by freshness commands and replies.
const (
    fieldSet     = "set"
    fieldOpTime  = "opTime"
    fieldWho     = "who"
    fieldCfgVer  = "cfgver"
    fieldID      = "id"
    fieldFresher = "fresher"
    fieldVeto    = "veto"
    fieldErrMsg  = "errmsg"
    fieldOK      = "ok"
)

// Algorithm scores the replies of one freshness round against the
// candidate's own optime. It is driven by a scatter.Runner, which
// serializes all calls, so it carries no locking.
type Algorithm struct {
    lastApplied optime.OpTime
    targets     int
    tally       *Tally
    logger      *log.Logger
}

var _ scatter.Algorithm = (*Algorithm)(nil)

// NewAlgorithm builds the policy for one round: the candidate's last
// applied optime and the number of peers being polled.
func NewAlgorithm(lastApplied optime.OpTime, targets int, logger *log.Logger) *Algorithm {
    return &Algorithm{
        lastApplied: lastApplied,
        targets:     targets,
        tally:       NewTally(),
        logger:      logger,
    }
}

// ProcessResponse records the terminal outcome for one peer. A delivery
// failure counts toward completion but never against the candidate's
// freshness.
func (a *Algorithm) ProcessResponse(target string, resp transport.Response) {
    a.tally.RecordProcessed()
    if resp.Failed() {
        logutil.Warnf(a.logger, "no response from %s during freshness check: %v", target, resp.Err)
        return
    }
    doc := resp.Doc
    if doc.Flag(fieldFresher) {
        logutil.Infof(a.logger, "not electing self, we are not freshest")
        a.tally.RecordFresher()
        return
    }
    wire, ok := doc.Time(fieldOpTime)
    if !ok {
        logutil.Errorf(a.logger, "wrong type for opTime argument in %s response: %s",
            CommandName, document.TypeName(doc[fieldOpTime]))
        a.tally.RecordMalformed()
        return
    }
    peerTime := optime.FromTime(wire)
    if peerTime.Equal(a.lastApplied) {
        a.tally.RecordTie()
    }
    if peerTime.After(a.lastApplied) {
        logutil.Infof(a.logger, "not electing self, we are not freshest")
        a.tally.RecordFresher()
        return
    }
    if doc.Flag(fieldVeto) {
        reason, _ := doc.Str(fieldErrMsg)
        logutil.Infof(a.logger, "not electing self, %s would veto with 'errmsg: %q'", target, reason)
        a.tally.RecordVeto(reason)
    }
}

// HasReceivedSufficientResponses reports whether the verdict can no
// longer change: the candidate is already disqualified, or every target
// produced an outcome. A tie alone never ends the round early.
func (a *Algorithm) HasReceivedSufficientResponses() bool {
    return !a.tally.Freshest() || a.tally.Processed() >= a.targets
}

// IsFreshest reports whether no peer disqualified the candidate.
func (a *Algorithm) IsFreshest() bool { return a.tally.Freshest() }

// IsTiedForFreshest reports whether some peer matched the candidate's
// optime exactly.
func (a *Algorithm) IsTiedForFreshest() bool { return a.tally.Tied() }

// ResponsesProcessed returns the number of terminal outcomes recorded.
func (a *Algorithm) ResponsesProcessed() int { return a.tally.Processed() }

// VetoReason returns the first veto reason, if the candidate was vetoed.
func (a *Algorithm) VetoReason() (string, bool) { return a.tally.Veto() }
