package freshness

// Tally accumulates the running verdict of one freshness round. The
// candidate starts out freshest and evidence can only take that away.
// A tie, once seen, sticks for the rest of the round even if the
// candidate is disqualified afterwards.
type Tally struct {
    freshest  bool
    tied      bool
    processed int
    vetoed    bool
    vetoMsg   string
}

// NewTally returns the verdict before any outcome has been recorded:
// freshest, not tied.
func NewTally() *Tally { return &Tally{freshest: true} }

// RecordProcessed counts one terminal outcome, reply or failure.
func (t *Tally) RecordProcessed() { t.processed++ }

// RecordFresher disqualifies the candidate: a peer proved fresher.
func (t *Tally) RecordFresher() { t.freshest = false }

// RecordTie notes a peer at exactly the candidate's optime.
func (t *Tally) RecordTie() { t.tied = true }

// RecordMalformed disqualifies the candidate over an unusable reply.
func (t *Tally) RecordMalformed() { t.freshest = false }

// RecordVeto disqualifies the candidate by peer veto. The first reason
// is kept.
func (t *Tally) RecordVeto(reason string) {
    t.freshest = false
    if !t.vetoed {
        t.vetoed = true
        t.vetoMsg = reason
    }
}

// Freshest reports whether nothing has disqualified the candidate yet.
func (t *Tally) Freshest() bool { return t.freshest }

// Tied reports whether any peer matched the candidate's optime.
func (t *Tally) Tied() bool { return t.tied }

// Processed returns how many terminal outcomes have been recorded.
func (t *Tally) Processed() int { return t.processed }

// Veto returns the first veto reason, if any peer vetoed.
func (t *Tally) Veto() (string, bool) { return t.vetoMsg, t.vetoed }
