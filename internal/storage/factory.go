package storage

import "fmt"

func DefaultStoreKind() string {
	return "file"
}

// NewStore builds a store backend. path is the leaderboard file for the
// file backend and the database file for the sqlite backend.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(path), nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
