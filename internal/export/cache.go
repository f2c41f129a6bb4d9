package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

// WriteSnapshot saves a snapshot as indented JSON, written atomically via
// a temp file so a crash never leaves a half-written cache.
func WriteSnapshot(path string, snap *domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteSnapshot: encoding: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("WriteSnapshot: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("WriteSnapshot: renaming into place: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot.
func ReadSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadSnapshot: reading %s: %w", path, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ReadSnapshot: decoding %s: %w", path, err)
	}
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return nil, fmt.Errorf("ReadSnapshot: snapshot schema version %d is newer than supported %d",
			snap.SchemaVersion, domain.SnapshotSchemaVersion)
	}
	return &snap, nil
}
