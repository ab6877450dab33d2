package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
)

// Layout: one top-level bucket holding a nested bucket per rule set.
//
//	rulesets/<name>/rules    binary-encoded matcher
//	rulesets/<name>/version  big-endian uint64
//	rulesets/<name>/updated  big-endian unix seconds
//	rulesets/<name>/count    big-endian rule count
var (
	bucketRuleSets = []byte("rulesets")
	keyRules       = []byte("rules")
	keyVersion     = []byte("version")
	keyUpdated     = []byte("updated")
	keyCount       = []byte("count")
)

// ErrEmptyName is returned when a rule set name is empty.
var ErrEmptyName = errors.New("rule set name must not be empty")

// boltStore implements ruleset.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures the root bucket exists.
func New(path string) (ruleset.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuleSets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Put writes the matcher under name and bumps its version in one transaction.
func (s *boltStore) Put(name string, m *domain.Matcher, updatedUnix int64) (uint64, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	if m == nil {
		m = domain.NewMatcher()
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("encode rule set %q: %w", name, err)
	}

	var version uint64
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketRuleSets).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		version = getUint64(b, keyVersion) + 1
		if err := b.Put(keyRules, data); err != nil {
			return err
		}
		if err := putUint64(b, keyVersion, version); err != nil {
			return err
		}
		if err := putUint64(b, keyUpdated, uint64(updatedUnix)); err != nil {
			return err
		}
		return putUint64(b, keyCount, uint64(m.Len()))
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Get returns the stored matcher for name. ok is false when the rule set does not exist.
func (s *boltStore) Get(name string) (*domain.Matcher, ruleset.SetMeta, bool, error) {
	var (
		m    *domain.Matcher
		meta ruleset.SetMeta
		ok   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuleSets).Bucket([]byte(name))
		if b == nil {
			return nil
		}
		// bbolt values are only valid inside the transaction; DecodeBinary copies.
		dec, err := domain.DecodeBinary(b.Get(keyRules))
		if err != nil {
			return fmt.Errorf("decode rule set %q: %w", name, err)
		}
		m = dec
		meta = ruleset.SetMeta{
			Version:     getUint64(b, keyVersion),
			UpdatedUnix: int64(getUint64(b, keyUpdated)),
			Rules:       dec.Len(),
		}
		ok = true
		return nil
	})
	if err != nil {
		return nil, ruleset.SetMeta{}, false, err
	}
	return m, meta, ok, nil
}

// Delete removes the rule set. Deleting a missing rule set is not an error.
func (s *boltStore) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketRuleSets).DeleteBucket([]byte(name))
		if errors.Is(err, bberrors.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Names lists the stored rule sets in key order.
func (s *boltStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuleSets).ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *boltStore) Stats() ruleset.StoreStats {
	st := ruleset.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRuleSets)
		return root.ForEachBucket(func(k []byte) error {
			st.RuleSets++
			st.Rules += getUint64(root.Bucket(k), keyCount)
			return nil
		})
	})
	return st
}

func getUint64(b *bbolt.Bucket, key []byte) uint64 {
	if v := b.Get(key); len(v) == 8 {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

func putUint64(b *bbolt.Bucket, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return b.Put(key, buf)
}
