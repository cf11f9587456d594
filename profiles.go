package vibechat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ProfileCache resolves opaque participant ids to display metadata. Entries
// are overwritten whole whenever a fresher resolution completes; within a
// session they are never deleted, only replaced. The cache is cleared in
// full on sign-out.
type ProfileCache struct {
	client *Client
	log    zerolog.Logger

	mu      sync.Mutex
	epoch   uint64
	users   map[string]User
	pending map[string]struct{}
}

// NewProfileCache creates an empty cache backed by client.
func NewProfileCache(client *Client) *ProfileCache {
	return &ProfileCache{
		client:  client,
		log:     client.log.With().Str("component", "profiles").Logger(),
		users:   make(map[string]User),
		pending: make(map[string]struct{}),
	}
}

// Get returns the cached profile for id. Unresolved ids are a normal state,
// not a fault: callers must fall back to an "unknown" rendering.
func (p *ProfileCache) Get(id string) (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	return u, ok
}

// Len returns the number of resolved profiles.
func (p *ProfileCache) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

// Resolve fetches profiles for ids in the background. Ids with a resolution
// already in flight are coalesced into it; ids already cached are fetched
// again so presence data stays fresh. Failures are logged and dropped — the
// next refresh retries naturally.
func (p *ProfileCache) Resolve(ids []string) {
	p.mu.Lock()
	epoch := p.epoch
	var todo []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, inflight := p.pending[id]; inflight {
			continue
		}
		p.pending[id] = struct{}{}
		todo = append(todo, id)
	}
	p.mu.Unlock()

	if len(todo) == 0 {
		return
	}
	go func() {
		if err := p.fetch(context.Background(), todo, epoch); err != nil {
			p.log.Warn().Err(err).Int("ids", len(todo)).Msg("profile resolution failed")
		}
	}()
}

// ResolveNow fetches profiles for ids synchronously. Used where the caller
// needs names before rendering, e.g. one-shot CLI listings.
func (p *ProfileCache) ResolveNow(ctx context.Context, ids []string) error {
	p.mu.Lock()
	epoch := p.epoch
	var todo []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, inflight := p.pending[id]; inflight {
			continue
		}
		p.pending[id] = struct{}{}
		todo = append(todo, id)
	}
	p.mu.Unlock()

	if len(todo) == 0 {
		return nil
	}
	return p.fetch(ctx, todo, epoch)
}

func (p *ProfileCache) fetch(ctx context.Context, ids []string, epoch uint64) error {
	users, err := p.client.UsersByIDs(ctx, ids)

	p.mu.Lock()
	if epoch != p.epoch {
		// The cache was cleared while this resolution was on the wire;
		// its results belong to the previous identity.
		p.mu.Unlock()
		p.log.Debug().Int("ids", len(ids)).Msg("discarding profile response from a cleared session")
		return err
	}
	for _, id := range ids {
		delete(p.pending, id)
	}
	if err == nil {
		// Last writer wins: whole-entry overwrite, no field merge.
		for _, u := range users {
			p.users[u.ID] = u
		}
	}
	p.mu.Unlock()

	return err
}

// Clear drops every entry and invalidates in-flight resolutions. Cached
// profiles belong to the viewer that resolved them and must not leak across
// identity changes — responses that land after Clear are discarded.
func (p *ProfileCache) Clear() {
	p.mu.Lock()
	p.epoch++
	p.users = make(map[string]User)
	p.pending = make(map[string]struct{})
	p.mu.Unlock()
}
