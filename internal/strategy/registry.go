// Package strategy implements the Strategy Registry: the set of running
// deployments per owner, kept in the Persistent Store and mirrored into
// an in-memory owner index that's derived, not stored directly, and
// rebuilt at startup rather than duplicated durably.
package strategy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/domain"
	"factory/internal/store"
)

// Registry is the Strategy Registry.
type Registry struct {
	store store.Store

	mu        sync.RWMutex
	byOwner   map[string][]string // owner -> container IDs
	logger    *logrus.Logger
}

// New creates a Registry backed by s. Call Rebuild once at startup before
// serving traffic.
func New(s store.Store, logger *logrus.Logger) *Registry {
	return &Registry{store: s, byOwner: make(map[string][]string), logger: logger}
}

// Rebuild reloads the in-memory owner index from the store's full
// strategy table, the Go-native analogue of state.rs's post_upgrade hook.
func (r *Registry) Rebuild(ctx context.Context) error {
	all, err := r.store.ListAllStrategies(ctx)
	if err != nil {
		return err
	}

	index := make(map[string][]string)
	for _, s := range all {
		index[s.Owner] = append(index[s.Owner], s.ContainerID)
	}

	r.mu.Lock()
	r.byOwner = index
	r.mu.Unlock()

	r.logger.Infof("Strategy registry rebuilt: %d owners, %d strategies", len(index), len(all))
	return nil
}

// Register records containerID as a running strategy for owner, called by
// the deployment state machine once a container reaches Running.
func (r *Registry) Register(ctx context.Context, meta *domain.StrategyMetadata) error {
	if err := r.store.InsertStrategy(ctx, meta); err != nil {
		return err
	}

	r.mu.Lock()
	r.byOwner[meta.Owner] = append(r.byOwner[meta.Owner], meta.ContainerID)
	r.mu.Unlock()

	return nil
}

// Deregister removes containerID from the store and the owner index.
// The deployment state machine does not call it, so a registered
// strategy stays listed until Deregister is called directly.
func (r *Registry) Deregister(ctx context.Context, containerID string) error {
	meta, err := r.store.GetStrategy(ctx, containerID)
	if err != nil {
		return err
	}
	if err := r.store.DeleteStrategy(ctx, containerID); err != nil {
		return err
	}

	r.mu.Lock()
	ids := r.byOwner[meta.Owner]
	for i, id := range ids {
		if id == containerID {
			r.byOwner[meta.Owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	return nil
}

// Get returns metadata for a single running strategy by container ID.
func (r *Registry) Get(ctx context.Context, containerID string) (*domain.StrategyMetadata, error) {
	return r.store.GetStrategy(ctx, containerID)
}

// ListByOwner returns owner's running strategies from the in-memory index,
// falling back to the store directly if the index hasn't been built yet.
func (r *Registry) ListByOwner(ctx context.Context, owner string) ([]domain.StrategyMetadata, error) {
	r.mu.RLock()
	ids, ok := r.byOwner[owner]
	r.mu.RUnlock()

	if !ok || len(ids) == 0 {
		return r.store.ListStrategiesByOwner(ctx, owner)
	}

	out := make([]domain.StrategyMetadata, 0, len(ids))
	for _, id := range ids {
		meta, err := r.store.GetStrategy(ctx, id)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				continue // index is stale, store is authoritative
			}
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}

// ListAll returns every running strategy across every owner (admin op).
func (r *Registry) ListAll(ctx context.Context) ([]domain.StrategyMetadata, error) {
	return r.store.ListAllStrategies(ctx)
}
