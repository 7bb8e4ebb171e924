package anisette

import (
	"context"
	"sync"
	"time"
)

// Generator is the shared, lock-guarded front door onto a Provider. Reads
// (cached data fetches) may proceed concurrently; provisioning is
// exclusive (§3, §7).
type Generator struct {
	provider Provider

	mu     sync.RWMutex
	cached Data
	have   bool

	now func() time.Time
}

// NewGenerator wraps provider with the caching and locking policy the
// scheduling model describes.
func NewGenerator(provider Provider) *Generator {
	return &Generator{provider: provider, now: time.Now}
}

// ClientInfo returns the provider's advisory client-info pair.
func (g *Generator) ClientInfo(ctx context.Context) (ClientInfo, error) {
	return g.provider.ClientInfo(ctx)
}

// Data returns a fresh-enough AnisetteData, provisioning first if needed
// and re-deriving headers once the cached snapshot is older than 60s.
//
// Per §7: a read lock is taken to check provisioning state; if
// provisioning is needed, the read lock is dropped, the write lock is
// acquired to run Provision, then the write lock is dropped and the read
// lock re-acquired to fetch data. The write lock is held for the whole
// provisioning exchange, so concurrent callers wait until it completes;
// header fetches run with no lock held.
func (g *Generator) Data(ctx context.Context) (Data, error) {
	g.mu.RLock()
	needsProvisioning := g.provider.NeedsProvisioning()
	g.mu.RUnlock()

	if needsProvisioning {
		g.mu.Lock()
		if g.provider.NeedsProvisioning() {
			if err := g.provider.Provision(ctx); err != nil {
				g.mu.Unlock()
				return Data{}, err
			}
		}
		g.mu.Unlock()
	}

	g.mu.RLock()
	cached := g.cached
	haveCache := g.have
	g.mu.RUnlock()

	if haveCache && !cached.Stale(g.now()) {
		return cached, nil
	}

	fresh, err := g.provider.HeaderData(ctx)
	if err != nil {
		return Data{}, err
	}

	g.mu.Lock()
	g.cached = fresh
	g.have = true
	g.mu.Unlock()

	return fresh, nil
}
