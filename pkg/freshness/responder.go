package freshness

import (
    "context"
    "errors"
    "fmt"
    "log"

    "github.com/amirimatin/go-freshness/pkg/document"
    "github.com/amirimatin/go-freshness/pkg/internal/logutil"
    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/replset"
)

// VetoPolicy lets the embedding application veto candidates for reasons
// beyond optime comparison, such as a member in maintenance or one that
// must never become primary.
type VetoPolicy interface {
    // Veto inspects a candidate and returns a reason when the candidate
    // should not stand for election.
    Veto(ctx context.Context, candidate replset.Member, candidateOpTime optime.OpTime) (reason string, veto bool)
}

// VetoFunc adapts a plain function to VetoPolicy.
type VetoFunc func(ctx context.Context, candidate replset.Member, candidateOpTime optime.OpTime) (string, bool)

// Veto implements VetoPolicy.
func (f VetoFunc) Veto(ctx context.Context, candidate replset.Member, candidateOpTime optime.OpTime) (string, bool) {
    return f(ctx, candidate, candidateOpTime)
}

// ResponderOptions wires a Responder to the local member's state.
type ResponderOptions struct {
    // Self identifies the answering member. Required.
    Self replset.Member
    // Config returns the current set snapshot. Required.
    Config func() replset.Config
    // LastApplied returns the member's current optime. Required.
    LastApplied func() optime.OpTime
    // Policy may veto candidates for application reasons. Optional.
    Policy VetoPolicy
    // Logger receives responder diagnostics. Optional.
    Logger *log.Logger
}

// Validate returns an error if required options are missing.
func (o ResponderOptions) Validate() error {
    if o.Self.Host == "" { return errors.New("freshness: responder options.Self.Host is empty") }
    if o.Config == nil { return errors.New("freshness: responder options.Config is nil") }
    if o.LastApplied == nil { return errors.New("freshness: responder options.LastApplied is nil") }
    return nil
}

// Responder answers freshness commands from candidate peers.
type Responder struct {
    opts ResponderOptions
}

// NewResponder builds a Responder from options.
func NewResponder(opts ResponderOptions) (*Responder, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    return &Responder{opts: opts}, nil
}

// Answer builds the reply to one freshness command. The reply always
// echoes the local identity and optime; fresher is set when the local
// optime is strictly ahead of the candidate's, veto plus a reason when
// the candidate should not stand for election.
func (r *Responder) Answer(ctx context.Context, cmd document.Doc) (document.Doc, error) {
    cfg := r.opts.Config()
    mine := r.opts.LastApplied()
    reply := document.Doc{
        fieldOK:     1,
        fieldSet:    cfg.Name,
        fieldWho:    r.opts.Self.Host,
        fieldID:     r.opts.Self.ID,
        fieldCfgVer: cfg.Version,
        fieldOpTime: mine.AsTime(),
    }
    veto := func(reason string) document.Doc {
        reply[fieldVeto] = true
        reply[fieldErrMsg] = reason
        return reply
    }

    set, _ := cmd.Str(fieldSet)
    if set != cfg.Name {
        logutil.Warnf(r.opts.Logger, "freshness check for set %q, mine is %q", set, cfg.Name)
        return veto(fmt.Sprintf("wrong set name %q, mine is %q", set, cfg.Name)), nil
    }
    wire, ok := cmd.Time(fieldOpTime)
    if !ok {
        return veto(fmt.Sprintf("wrong type for opTime argument in %s command: %s",
            CommandName, document.TypeName(cmd[fieldOpTime]))), nil
    }
    theirs := optime.FromTime(wire)
    if mine.After(theirs) {
        reply[fieldFresher] = true
    }
    if v, ok := cmd.Int64(fieldCfgVer); ok && v < cfg.Version {
        return veto(fmt.Sprintf("configuration version %d is older than mine (%d)", v, cfg.Version)), nil
    }
    who, _ := cmd.Str(fieldWho)
    candidate, found := cfg.FindHost(who)
    if !found {
        return veto(fmt.Sprintf("%s is not a member of my configuration", who)), nil
    }
    if id, ok := cmd.Int64(fieldID); ok && id != candidate.ID {
        return veto(fmt.Sprintf("member id %d does not match %s", id, who)), nil
    }
    if r.opts.Policy != nil {
        if reason, vetoed := r.opts.Policy.Veto(ctx, candidate, theirs); vetoed {
            logutil.Infof(r.opts.Logger, "vetoing %s: %s", who, reason)
            return veto(reason), nil
        }
    }
    return reply, nil
}
