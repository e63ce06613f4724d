package rebuild

import "errors"

var (
	ErrIndexerRequired     = errors.New("indexer is required")
	ErrCheckpointsRequired = errors.New("checkpoint repository is required")
	ErrRebuildInProgress   = errors.New("a rebuild of this kind is already running")
	ErrJobNotFound         = errors.New("rebuild job not found")
	ErrJobFinished         = errors.New("rebuild job already completed")
	ErrManagerClosed       = errors.New("rebuild manager is closed")
)
