package relayconfig

import (
	"errors"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ResolveBoatID returns BOAT_ID if set, otherwise the persisted app UUID at
// uuidFilePath, generating and persisting one on first run.
func ResolveBoatID(uuidFilePath string) (string, error) {
	if id := strings.TrimSpace(os.Getenv("BOAT_ID")); id != "" {
		return id, nil
	}
	return LoadOrCreateBoatID(uuidFilePath)
}

// LoadOrCreateBoatID reads the 36-character UUID persisted at path,
// creating and persisting a fresh one on first run.
func LoadOrCreateBoatID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	id := uuid.NewString()
	if err := writeAtomic(path, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// writeAtomic writes data to path using write-temp-then-rename, the same
// pattern the push-token store uses for its persisted file.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
