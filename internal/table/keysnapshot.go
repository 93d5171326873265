package table

import "sync"

// keySnapshot caches the rendered key-list string so `%getkeys`/`dserv/keys`
// reads touch the per-shard locks only when the cache is stale. Adapted from the
// copy-on-write labels cache: the cached string is shared freely by
// concurrent readers and only recomputed, under lock, once it has been
// invalidated by a write.
type keySnapshot struct {
	mu    sync.Mutex
	valid bool
	value string
}

func newKeySnapshot() *keySnapshot {
	return &keySnapshot{}
}

// invalidate marks the cache stale; the next get recomputes it.
func (k *keySnapshot) invalidate() {
	k.mu.Lock()
	k.valid = false
	k.mu.Unlock()
}

// get returns the cached value, recomputing it via compute if stale.
func (k *keySnapshot) get(compute func() string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.valid {
		k.value = compute()
		k.valid = true
	}
	return k.value
}
