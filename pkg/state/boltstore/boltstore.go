// Package boltstore stores the last applied optime in a bbolt file.
package boltstore

import (
    "encoding/binary"
    "fmt"

    "go.etcd.io/bbolt"

    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/state"
)

var (
    optimeBucket   = []byte("optime")
    lastAppliedKey = []byte("lastApplied")
)

// Store is a bbolt-backed OpTimeStore. A single file holds one record;
// writes go through bbolt transactions so a crash never leaves a torn
// optime behind.
type Store struct {
    db *bbolt.DB
}

// Open opens or creates the store file at path.
func Open(path string) (*Store, error) {
    db, err := bbolt.Open(path, 0o600, nil)
    if err != nil { return nil, fmt.Errorf("boltstore: open %s: %w", path, err) }
    err = db.Update(func(tx *bbolt.Tx) error {
        _, err := tx.CreateBucketIfNotExists(optimeBucket)
        return err
    })
    if err != nil {
        db.Close()
        return nil, fmt.Errorf("boltstore: create bucket: %w", err)
    }
    return &Store{db: db}, nil
}

func (s *Store) Load() (optime.OpTime, error) {
    var out optime.OpTime
    err := s.db.View(func(tx *bbolt.Tx) error {
        data := tx.Bucket(optimeBucket).Get(lastAppliedKey)
        if data == nil { return nil }
        if len(data) != 8 {
            return fmt.Errorf("boltstore: corrupt optime record (%d bytes)", len(data))
        }
        out = optime.New(binary.BigEndian.Uint32(data[:4]), binary.BigEndian.Uint32(data[4:]))
        return nil
    })
    return out, err
}

func (s *Store) Save(at optime.OpTime) error {
    buf := make([]byte, 8)
    binary.BigEndian.PutUint32(buf[:4], at.Secs)
    binary.BigEndian.PutUint32(buf[4:], at.Inc)
    return s.db.Update(func(tx *bbolt.Tx) error {
        return tx.Bucket(optimeBucket).Put(lastAppliedKey, buf)
    })
}

func (s *Store) Close() error { return s.db.Close() }

// Ensure interface satisfaction at compile-time.
var _ state.OpTimeStore = (*Store)(nil)
