// Package replset describes the static view of a replica set that a
// freshness round runs against: the set name, the configuration version
// and the ordered member list.
package replset

import (
    "errors"
    "fmt"
)

// Member is one entry of a replica set configuration.
type Member struct {
    ID   int64  `json:"id"`
    Host string `json:"host"`
}

// Config is an immutable snapshot of the set as one member sees it.
// Members are kept in ascending ID order.
type Config struct {
    Name    string   `json:"name"`
    Version int64    `json:"version"`
    Members []Member `json:"members"`
}

// Validate checks structural soundness of the configuration.
func (c Config) Validate() error {
    if c.Name == "" { return errors.New("replset: empty set name") }
    if c.Version < 1 { return fmt.Errorf("replset: version %d out of range", c.Version) }
    if len(c.Members) == 0 { return errors.New("replset: no members") }
    ids := make(map[int64]struct{}, len(c.Members))
    hosts := make(map[string]struct{}, len(c.Members))
    for _, m := range c.Members {
        if m.Host == "" { return fmt.Errorf("replset: member %d has no host", m.ID) }
        if _, dup := ids[m.ID]; dup { return fmt.Errorf("replset: duplicate member id %d", m.ID) }
        if _, dup := hosts[m.Host]; dup { return fmt.Errorf("replset: duplicate member host %s", m.Host) }
        ids[m.ID] = struct{}{}
        hosts[m.Host] = struct{}{}
    }
    return nil
}

// FindHost returns the member listening on host.
func (c Config) FindHost(host string) (Member, bool) {
    for _, m := range c.Members {
        if m.Host == host { return m, true }
    }
    return Member{}, false
}

// FindID returns the member with the given id.
func (c Config) FindID(id int64) (Member, bool) {
    for _, m := range c.Members {
        if m.ID == id { return m, true }
    }
    return Member{}, false
}

// Peers returns the hosts of every member except the one at selfIndex.
func (c Config) Peers(selfIndex int) []string {
    out := make([]string, 0, len(c.Members))
    for i, m := range c.Members {
        if i == selfIndex { continue }
        out = append(out, m.Host)
    }
    return out
}
