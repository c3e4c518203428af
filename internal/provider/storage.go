package provider

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mrz1836/estatelink/internal/fileutil"
)

const linkFilePermissions = 0o600

// linkRecord is the on-disk layout of a provider's linked-address file.
type linkRecord struct {
	Addresses
	LinkedAt time.Time `json:"linked_at"`
}

// FileStorage persists the addresses a provider has linked, playing the role
// of a wallet SDK's own local storage.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates storage backed by path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the backing file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Save records addrs as the linked wallet.
func (s *FileStorage) Save(addrs *Addresses) error {
	if addrs == nil {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := linkRecord{Addresses: *addrs, LinkedAt: time.Now().UTC()}
	if err := fileutil.WriteJSON(s.path, rec, linkFilePermissions); err != nil {
		return fmt.Errorf("saving linked addresses: %w", err)
	}
	return nil
}

// Load returns the linked addresses, or an empty Addresses when nothing is linked.
// A corrupted file is removed and reported as empty; if it cannot be removed
// the removal error is returned.
func (s *FileStorage) Load() (*Addresses, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec linkRecord
	found, err := fileutil.ReadJSON(s.path, &rec)
	if err != nil {
		if errors.Is(err, fileutil.ErrCorruptFile) {
			if rmErr := fileutil.Remove(s.path); rmErr != nil {
				return nil, fmt.Errorf("discarding corrupt link file: %w", rmErr)
			}
			return &Addresses{}, nil
		}
		return nil, err
	}
	if !found {
		return &Addresses{}, nil
	}
	return &rec.Addresses, nil
}

// Clear removes the linked-address record.
func (s *FileStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fileutil.Remove(s.path)
}
