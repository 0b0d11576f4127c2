package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	bolt "go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// Bolt persists state in a BoltDB file. It is the backend used by the daemon.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (and migrates) the BoltDB-backed store at path.
func NewBolt(path string, options *bolt.Options) (*Bolt, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying database handle.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Bolt) KVGet(key []byte, out interface{}) (bool, error) {
	var raw []byte
	if err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketState).Get(key)
		if value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	}); err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bolt) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(key, raw)
	})
}

func (b *Bolt) KVHas(key []byte) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketState).Get(key) != nil
		return nil
	})
	return ok, err
}

func (b *Bolt) KVDelete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Delete(key)
	})
}
