package store

import (
	"os"
	"path/filepath"
	"testing"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func testPolicy() *consensus.Policy {
	return &consensus.Policy{
		Registry: []consensus.Script{{
			CodeHash: crypto.Blake2b256([]byte("native:auth")),
			HashType: consensus.HASH_TYPE_DATA1,
			Args:     append([]byte{consensus.AUTH_ID_CKB}, make([]byte, 19)...),
		}},
		Matrix: [][]uint16{{0}},
	}
}

func withSeed(p *consensus.Policy, seed byte) *consensus.Policy {
	p.Registry[0].Args = append(p.Registry[0].Args, seed)
	return p
}

func openBook(t *testing.T, dir string) *Book {
	t.Helper()
	b, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBook_PutGet(t *testing.T) {
	b := openBook(t, t.TempDir())
	p := withSeed(testPolicy(), 1)

	c, err := b.PutPolicy(p, "alice")
	require.NoError(t, err)
	assert.Equal(t, consensus.ComputeCommitment(crypto.CKBCryptoProvider{}, p), c)

	got, raw, ok, err := b.GetPolicy(c)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.Bytes(), raw)
	assert.Equal(t, p.Bytes(), got.Bytes())

	_, _, ok, err = b.GetPolicy(consensus.Commitment{0x01})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBook_ResolveAndList(t *testing.T) {
	b := openBook(t, t.TempDir())
	c1, err := b.PutPolicy(withSeed(testPolicy(), 1), "alice")
	require.NoError(t, err)
	c2, err := b.PutPolicy(withSeed(testPolicy(), 2), "")
	require.NoError(t, err)

	got, ok, err := b.Resolve("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c1, got)

	got, ok, err = b.Resolve("0x" + c2.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c2, got)

	_, ok, err = b.Resolve("bob")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := b.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	labels := map[consensus.Commitment]string{}
	for _, e := range entries {
		labels[e.Commitment] = e.Label
		assert.Positive(t, e.Size)
	}
	assert.Equal(t, "alice", labels[c1])
	assert.Equal(t, "", labels[c2])
}

func TestBook_LabelConflict(t *testing.T) {
	b := openBook(t, t.TempDir())
	_, err := b.PutPolicy(withSeed(testPolicy(), 1), "alice")
	require.NoError(t, err)
	_, err = b.PutPolicy(withSeed(testPolicy(), 2), "alice")
	require.Error(t, err)

	// Same policy, same label: idempotent.
	_, err = b.PutPolicy(withSeed(testPolicy(), 1), "alice")
	require.NoError(t, err)
}

func TestBook_RejectsInvalidPolicy(t *testing.T) {
	b := openBook(t, t.TempDir())
	p := testPolicy()
	p.Matrix = [][]uint16{{3}}
	_, err := b.PutPolicy(p, "")
	code, ok := consensus.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, consensus.LOCK_ERR_MALFORMED_ENCODING, code)
}

func TestBook_Delete(t *testing.T) {
	b := openBook(t, t.TempDir())
	c, err := b.PutPolicy(withSeed(testPolicy(), 1), "alice")
	require.NoError(t, err)
	require.NoError(t, b.Delete(c))

	_, _, ok, err := b.GetPolicy(c)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = b.Resolve("alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBook_ReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, nil)
	require.NoError(t, err)
	c, err := b.PutPolicy(withSeed(testPolicy(), 1), "")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b = openBook(t, dir)
	assert.Equal(t, SchemaVersionV1, b.Manifest().SchemaVersion)
	_, _, ok, err := b.GetPolicy(c)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBook_DetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, nil)
	require.NoError(t, err)
	c, err := b.PutPolicy(withSeed(testPolicy(), 1), "")
	require.NoError(t, err)
	require.NoError(t, b.db.Update(func(tx *bolt.Tx) error {
		raw := append([]byte(nil), tx.Bucket(bucketPolicies).Get(c[:])...)
		raw[len(raw)-1] ^= 0xff
		return tx.Bucket(bucketPolicies).Put(c[:], raw)
	}))
	_, _, _, err = b.GetPolicy(c)
	require.Error(t, err)
	require.NoError(t, b.Close())
}

func TestBook_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(BookDir(dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(BookDir(dir), "MANIFEST.json"), []byte(`{"schema_version":2,"hash":"blake2b-256/ckb-default-hash"}`), 0o600))
	_, err := Open(dir, nil)
	require.Error(t, err)
}

func TestBook_RejectsForeignHash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(BookDir(dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(BookDir(dir), "MANIFEST.json"), []byte(`{"schema_version":1,"hash":"sha256"}`), 0o600))
	_, err := Open(dir, nil)
	require.ErrorContains(t, err, "manifest hash")
}

func TestBook_ManifestWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	b := openBook(t, dir)
	assert.Equal(t, &Manifest{SchemaVersion: SchemaVersionV1, Hash: hashName}, b.Manifest())
	require.NoError(t, b.Close())

	entries, err := os.ReadDir(BookDir(dir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"MANIFEST.json", "book.db"}, names)

	require.NoError(t, os.WriteFile(filepath.Join(BookDir(dir), "MANIFEST.json"), []byte("{"), 0o600))
	_, err = Open(dir, nil)
	require.ErrorContains(t, err, "manifest")
}

func TestOpenRequiresDatadir(t *testing.T) {
	_, err := Open("", nil)
	require.Error(t, err)
}
