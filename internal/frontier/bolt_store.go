package frontier

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	entryBucket = "frontier_entries"
	urlBucket   = "frontier_urls"
	seqKeyBytes = 8
)

// boltStore implements a Store backed by BoltDB. Entries are keyed by a big-endian bucket
// sequence so cursor order is insertion order; urlBucket maps each url to its sequence key.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create frontier directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{entryBucket, urlBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) Load() ([]domain.FrontierEntry, error) {
	var entries []domain.FrontierEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, _, err := buckets(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func (b *boltStore) AppendNew(candidates []domain.FrontierEntry) (int, error) {
	var added int
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, index, err := buckets(tx)
		if err != nil {
			return err
		}

		known := make(map[string]struct{})
		for _, c := range candidates {
			if url := sanitizeEntry(c).URL; index.Get([]byte(url)) != nil {
				known[url] = struct{}{}
			}
		}

		for _, e := range newEntries(known, candidates) {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key := encodeSeq(seq)
			value, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, value); err != nil {
				return err
			}
			if err := index.Put([]byte(e.URL), key); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (b *boltStore) Pending() ([]domain.FrontierEntry, error) {
	entries, err := b.Load()
	if err != nil {
		return nil, err
	}
	return pendingOf(entries), nil
}

func (b *boltStore) Label(url string) (string, bool, error) {
	var (
		label string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, index, err := buckets(tx)
		if err != nil {
			return err
		}
		key := index.Get([]byte(url))
		if key == nil {
			return nil
		}
		e, err := decodeEntry(key, bucket.Get(key))
		if err != nil {
			return err
		}
		label, found = e.Label, true
		return nil
	})
	return label, found, err
}

func (b *boltStore) MarkScraped(url string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, index, err := buckets(tx)
		if err != nil {
			return err
		}
		key := index.Get([]byte(url))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrUnknownURL, url)
		}
		e, err := decodeEntry(key, bucket.Get(key))
		if err != nil {
			return err
		}
		e.Scraped = true
		return putEntry(bucket, key, e)
	})
}

func (b *boltStore) ResetAll() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, _, err := buckets(tx)
		if err != nil {
			return err
		}

		// Collect first; writing while a cursor walks the bucket is undefined in bbolt.
		keys := make([][]byte, 0)
		updated := make([]domain.FrontierEntry, 0)
		err = bucket.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			if e.Scraped {
				e.Scraped = false
				keys = append(keys, append([]byte(nil), k...))
				updated = append(updated, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, k := range keys {
			if err := putEntry(bucket, k, updated[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func buckets(tx *bolt.Tx) (entries, index *bolt.Bucket, err error) {
	entries = tx.Bucket([]byte(entryBucket))
	index = tx.Bucket([]byte(urlBucket))
	if entries == nil || index == nil {
		return nil, nil, fmt.Errorf("frontier buckets missing")
	}
	return entries, index, nil
}

func putEntry(bucket *bolt.Bucket, key []byte, e domain.FrontierEntry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return bucket.Put(append([]byte(nil), key...), value)
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, seqKeyBytes)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func decodeEntry(key, value []byte) (domain.FrontierEntry, error) {
	var e domain.FrontierEntry
	if len(key) != seqKeyBytes || value == nil {
		return e, fmt.Errorf("%w: bad record key %x", ErrCorruptEntry, key)
	}
	if err := json.Unmarshal(value, &e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if e.URL == "" {
		return e, fmt.Errorf("%w: empty url at %d", ErrCorruptEntry, binary.BigEndian.Uint64(key))
	}
	return e, nil
}
