package discovery

// Discovery abstracts how gossip seed addresses are provided to a node.
// Implementations cover static lists, files/ENV and DNS records.
type Discovery interface {
    Seeds() []string
}
