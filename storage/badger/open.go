package badger

import (
	"errors"

	"github.com/poiesic/marketsearch/storage"
)

// Open opens a BadgerDB database and returns its repositories.
// An empty path or inMemory opens an in-memory database.
// Closing the returned Repositories closes the database.
func Open(path string, inMemory bool, opts ...IndexOption) (*storage.Repositories, error) {
	backend, err := OpenBackend(path, inMemory || path == "")
	if err != nil {
		return nil, err
	}
	return openRepositories(backend, opts...)
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must close the returned Repositories when done.
func NewMemoryRepositories(opts ...IndexOption) (*storage.Repositories, error) {
	return Open("", true, opts...)
}

func openRepositories(backend *Backend, opts ...IndexOption) (*storage.Repositories, error) {
	index, err := NewIndexRepository(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	logs, err := NewQueryLogRepository(backend)
	if err != nil {
		index.Close()
		backend.Close()
		return nil, err
	}

	outbox, err := NewOutboxRepository(backend)
	if err != nil {
		logs.Close()
		index.Close()
		backend.Close()
		return nil, err
	}

	closer := func() error {
		return errors.Join(logs.Close(), outbox.Close(), backend.Close())
	}
	return storage.NewRepositories(index, logs, NewCheckpointRepository(backend), outbox, closer), nil
}
