package storage

import "errors"

// ErrNotFound is returned by Retrieve when no record exists under the key
var ErrNotFound = errors.New("storage: record not found")

// StorageInterface defines the contract for storage operations.
// Keys are slash separated paths such as "platforms/twitter.json".
type StorageInterface interface {
	Store(key string, data []byte) error
	Retrieve(key string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(key string) error
}
