package focus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// inflightRegistry implements last-requested-wins for concurrent builds of
// the same focus key: starting a build cancels any in-flight build for the
// key, and only the build holding the latest token may commit its result.
type inflightRegistry struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

type inflightEntry struct {
	token  string
	cancel context.CancelFunc
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{entries: make(map[string]*inflightEntry)}
}

// begin registers a new build for key, cancelling any previous one. The
// returned context is cancelled if a later build supersedes this one.
func (r *inflightRegistry) begin(ctx context.Context, key string) (context.Context, string) {
	buildCtx, cancel := context.WithCancel(ctx)
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[key]; ok {
		prev.cancel()
	}
	r.entries[key] = &inflightEntry{token: token, cancel: cancel}

	return buildCtx, token
}

// commit reports whether the build holding token is still the latest for
// key, and removes the entry when it is. The entry's context is cancelled
// on removal; the build is complete and nothing downstream uses it.
func (r *inflightRegistry) commit(key, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.token != token {
		return false
	}

	entry.cancel()
	delete(r.entries, key)
	return true
}

// release removes the entry when the build holding token exits without
// committing, cancelling its context. No-op when a later build superseded
// the token or a commit already removed the entry.
func (r *inflightRegistry) release(key, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.token != token {
		return
	}

	entry.cancel()
	delete(r.entries, key)
}
