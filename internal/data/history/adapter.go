package history

import (
	"context"
	"time"
)

// Adapter bridges Store to the core RunHistory port.
type Adapter struct {
	store *Store
	keep  int
}

// NewAdapter prunes each network down to keep runs after every save; keep <= 0
// keeps everything.
func NewAdapter(store *Store, keep int) *Adapter {
	return &Adapter{store: store, keep: keep}
}

func (a *Adapter) SaveRun(ctx context.Context, run Run) (string, error) {
	id, err := a.store.SaveRun(ctx, run)
	if err != nil {
		return "", err
	}
	if _, err := a.store.Prune(run.Network, a.keep); err != nil {
		return id, err
	}
	return id, nil
}

func (a *Adapter) LoadRuns(network string, since time.Time) ([]Run, error) {
	return a.store.LoadRuns(network, since)
}
