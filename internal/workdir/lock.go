package workdir

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"arpgen/internal/services"
)

// Lock guards a working directory against concurrent assembly runs.
type Lock struct {
	flock *flock.Flock
}

// Acquire takes the working directory lock without blocking. A held
// lock means another run owns the directory.
func Acquire(l Layout) (*Lock, error) {
	fl := flock.New(filepath.Join(l.Root(), ".arpgen.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire work directory lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("another assemble is already running in %s", l.Root()), nil)
	}
	return &Lock{flock: fl}, nil
}

// Release drops the lock. Safe on a nil lock.
func (k *Lock) Release() error {
	if k == nil || k.flock == nil {
		return nil
	}
	return k.flock.Unlock()
}
