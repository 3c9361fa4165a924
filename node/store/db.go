package store

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketPolicies = []byte("policies_by_commitment")
	bucketLabels   = []byte("commitment_by_label")
	bucketLabelOf  = []byte("label_by_commitment")
)

const hashName = "blake2b-256/ckb-default-hash"

// Book is the persistent policy book: committed policies keyed by their
// commitment, so a spender can reveal a policy long after the cell was created.
type Book struct {
	dir      string
	db       *bolt.DB
	provider crypto.CryptoProvider
	manifest *Manifest
}

type Entry struct {
	Commitment consensus.Commitment
	Label      string
	Size       int
}

func Open(datadir string, p crypto.CryptoProvider) (*Book, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if p == nil {
		p = crypto.CKBCryptoProvider{}
	}
	dir := BookDir(datadir)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "book.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	b := &Book{dir: dir, db: bdb, provider: p}

	if err := b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPolicies, bucketLabels, bucketLabelOf} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(name), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := loadManifest(dir, hashName)
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	b.manifest = m
	return b, nil
}

func (b *Book) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Book) Dir() string { return b.dir }

func (b *Book) Manifest() *Manifest {
	if b == nil {
		return nil
	}
	return b.manifest
}

// PutPolicy stores policy under its commitment and, if label is non-empty,
// binds the label to it. Re-putting a policy is a no-op apart from the label.
func (b *Book) PutPolicy(policy *consensus.Policy, label string) (consensus.Commitment, error) {
	if err := policy.Validate(); err != nil {
		return consensus.Commitment{}, err
	}
	label = strings.TrimSpace(label)
	raw := policy.Bytes()
	c := consensus.Commitment(b.provider.ContentHash(raw))
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPolicies).Put(c[:], raw); err != nil {
			return err
		}
		if label == "" {
			return nil
		}
		if prev := tx.Bucket(bucketLabels).Get([]byte(label)); prev != nil && string(prev) != string(c[:]) {
			return fmt.Errorf("label %q already names %s", label, hex.EncodeToString(prev))
		}
		if err := tx.Bucket(bucketLabels).Put([]byte(label), c[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketLabelOf).Put(c[:], []byte(label))
	})
	if err != nil {
		return consensus.Commitment{}, err
	}
	return c, nil
}

// GetPolicy returns the policy stored for c together with its exact encoding.
// A stored encoding that no longer hashes to c is reported as corruption.
func (b *Book) GetPolicy(c consensus.Commitment) (*consensus.Policy, []byte, bool, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPolicies).Get(c[:])
		if v == nil {
			return nil
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	if raw == nil {
		return nil, nil, false, nil
	}
	if consensus.Commitment(b.provider.ContentHash(raw)) != c {
		return nil, nil, false, fmt.Errorf("policy book: entry %s is corrupt", c)
	}
	p, err := consensus.DecodePolicy(raw)
	if err != nil {
		return nil, nil, false, fmt.Errorf("policy book: entry %s: %w", c, err)
	}
	return p, raw, true, nil
}

// Resolve accepts a hex commitment or a label.
func (b *Book) Resolve(ref string) (consensus.Commitment, bool, error) {
	ref = strings.TrimSpace(ref)
	if raw, err := hex.DecodeString(strings.TrimPrefix(ref, "0x")); err == nil && len(raw) == consensus.COMMITMENT_BYTES {
		return consensus.Commitment(raw), true, nil
	}
	var c consensus.Commitment
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLabels).Get([]byte(ref))
		if v == nil {
			return nil
		}
		copy(c[:], v)
		ok = true
		return nil
	})
	return c, ok, err
}

// List returns every entry in commitment order.
func (b *Book) List() ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		labels := tx.Bucket(bucketLabelOf)
		return tx.Bucket(bucketPolicies).ForEach(func(k, v []byte) error {
			var e Entry
			copy(e.Commitment[:], k)
			e.Size = len(v)
			if l := labels.Get(k); l != nil {
				e.Label = string(l)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (b *Book) Delete(c consensus.Commitment) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if l := tx.Bucket(bucketLabelOf).Get(c[:]); l != nil {
			if err := tx.Bucket(bucketLabels).Delete(append([]byte(nil), l...)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketLabelOf).Delete(c[:]); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketPolicies).Delete(c[:])
	})
}
