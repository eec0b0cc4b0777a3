package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// keyVersions remembers the newest event version applied per cache key.
// Memory is bounded; an evicted key accepts any version again.
type keyVersions struct {
	mu   sync.Mutex
	seen *lru.Cache[string, uint64]
}

func newKeyVersions(size int) *keyVersions {
	if size <= 0 {
		size = 8192
	}
	c, err := lru.New[string, uint64](size)
	if err != nil {
		panic(err) // size is positive
	}
	return &keyVersions{seen: c}
}

// stale reports whether a version at or above v was already applied to key.
func (k *keyVersions) stale(key string, v uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	last, ok := k.seen.Peek(key)
	return ok && v <= last
}

// record remembers v for keys once their delete succeeded. A lower version
// never replaces a higher one.
func (k *keyVersions) record(v uint64, keys ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		if last, ok := k.seen.Peek(key); ok && v <= last {
			continue
		}
		k.seen.Add(key, v)
	}
}

func (k *keyVersions) len() int { return k.seen.Len() }
