package embedding

import (
	"hash/fnv"
	"sync"

	"github.com/Veraticus/modality/internal/model"
)

const cacheShards = 16

type cacheShard struct {
	entries map[string]model.Vector
	mu      sync.RWMutex
}

// Cache is a content-addressed, append-only vector cache safe for concurrent use.
// Entries are never replaced or evicted for the lifetime of the process.
type Cache struct {
	shards [cacheShards]*cacheShard
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]model.Vector)}
	}
	return c
}

func (c *Cache) shard(key string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShards]
}

// Get returns the vector stored under key.
func (c *Cache) Get(key string) (model.Vector, bool) {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Put stores v under key unless the key is already present, and returns the
// vector that is now stored. The first writer wins.
func (c *Cache) Put(key string, v model.Vector) model.Vector {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok {
		return existing
	}
	stored := make(model.Vector, len(v))
	copy(stored, v)
	s.entries[key] = stored
	return stored
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
