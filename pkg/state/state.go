// Package state persists the node's last applied operation time across
// restarts, so a rejoining node votes from its real position instead of
// the zero optime.
package state

import "github.com/amirimatin/go-freshness/pkg/optime"

// OpTimeStore is the persistence capability for the last applied optime.
type OpTimeStore interface {
    // Load returns the stored optime, or the zero optime when nothing
    // has been saved yet.
    Load() (optime.OpTime, error)
    // Save durably records the optime.
    Save(at optime.OpTime) error
    // Close releases the underlying storage.
    Close() error
}
