package storage

import (
	"fmt"
	"io"

	"github.com/postprober/dashboard-core/internal/config"
)

// New builds the storage backend selected by STORAGE_BACKEND. The returned
// closer is a no-op for backends without resources to release.
func New(cfg *config.Config) (StorageInterface, io.Closer, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		s, err := NewSQLiteStorage(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "azure":
		s, err := NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "redis":
		s, err := NewRedisStorage(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		return NewMemoryStorage(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
