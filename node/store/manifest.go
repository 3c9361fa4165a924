package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const SchemaVersionV1 uint32 = 1

const manifestName = "MANIFEST.json"

// Manifest pins the policy book's layout and the hash its commitments were
// computed with. A book opened with another hash would resolve nothing.
type Manifest struct {
	SchemaVersion uint32 `json:"schema_version"`
	Hash          string `json:"hash"`
}

func (m *Manifest) compatible(hashName string) error {
	if m.SchemaVersion == 0 || m.SchemaVersion > SchemaVersionV1 {
		return fmt.Errorf("manifest schema_version %d, supported 1..%d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Hash != hashName {
		return fmt.Errorf("manifest hash %q, want %q", m.Hash, hashName)
	}
	return nil
}

// loadManifest reads the book's manifest, creating it on first open.
func loadManifest(dir, hashName string) (*Manifest, error) {
	path := filepath.Join(dir, manifestName)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m := &Manifest{SchemaVersion: SchemaVersionV1, Hash: hashName}
		if err := saveManifest(dir, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := m.compatible(hashName); err != nil {
		return nil, err
	}
	return &m, nil
}

// saveManifest replaces the manifest through a synced temp file, so a crash
// leaves either the old manifest or the new one.
func saveManifest(dir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, manifestName+".*")
	if err != nil {
		return fmt.Errorf("manifest temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest close: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestName)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest rename: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
