package marketdata

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Lock is a run-scoped lock on a persisted table. Overwrites and appends do
// not commute, so concurrent runs on the same store must be serialized.
type Lock struct {
	path  string
	RunID string
}

// LockStore acquires the lock file next to the store at path. It fails
// immediately if another run holds it.
func LockStore(path string) (*Lock, error) {
	l := &Lock{path: path + ".lock", RunID: uuid.NewString()}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		owner, _ := os.ReadFile(l.path)
		return nil, fmt.Errorf("store %q is locked by run %q, remove %q if that run is dead", path, strings.TrimSpace(string(owner)), l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot lock store %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, l.RunID); err != nil {
		os.Remove(l.path)
		return nil, fmt.Errorf("cannot lock store %q: %w", path, err)
	}
	log.Printf("lock-store name=%q run=%q", path, l.RunID)
	return l, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("cannot unlock %q: %w", l.path, err)
	}
	return nil
}
