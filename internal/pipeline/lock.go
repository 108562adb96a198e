package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run is in progress")

// Lock takes the exclusive run lock at path without waiting. The log file
// and staging file are rewritten by read-modify-write, so two runs must
// never overlap. The returned func releases the lock.
func Lock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: %w", path, ErrLocked)
	}
	log.Debug().Str("lockFile", path).Msg("Run lock acquired")
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Err(err).Str("lockFile", path).Msg("Failed to release run lock")
		}
	}, nil
}
