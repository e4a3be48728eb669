package persist

import (
	"context"
	"encoding/json"
)

// Snapshot is the persisted slice of a store.
type Snapshot struct {
	State   map[string]json.RawMessage `json:"state"`
	Version int                        `json:"version"`
}

// LoadStatus classifies a load.
type LoadStatus int

const (
	// LoadEmpty means nothing was persisted yet.
	LoadEmpty LoadStatus = iota
	// LoadFound means Snapshot holds persisted data.
	LoadFound
	// LoadFailed means the storage engine was unavailable or the read
	// transaction failed. Err holds the *StorageError.
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadEmpty:
		return "empty"
	case LoadFound:
		return "found"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of Storage.Load.
type LoadResult struct {
	Status   LoadStatus
	Snapshot Snapshot
	Err      error
}

// Found wraps a persisted snapshot.
func Found(s Snapshot) LoadResult {
	return LoadResult{Status: LoadFound, Snapshot: s}
}

// Empty reports that nothing was persisted.
func Empty() LoadResult {
	return LoadResult{Status: LoadEmpty}
}

// Failed reports a storage failure.
func Failed(err error) LoadResult {
	return LoadResult{Status: LoadFailed, Err: err}
}

// Storage is the contract between the persistence middleware and a
// durable backend. name is the persistence key of the store; adapters bound
// to a fixed table may ignore it.
//
// Save and Clear never report failures to the caller.
type Storage interface {
	Load(ctx context.Context, name string) LoadResult
	Save(ctx context.Context, name string, snap Snapshot)
	Clear(ctx context.Context, name string)
}
