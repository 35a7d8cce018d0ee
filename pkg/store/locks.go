package store

import (
	"hash/fnv"
	"sync"
)

// lockStripes bounds lock memory; mutations on distinct messages proceed in
// parallel unless they hash to the same stripe.
const lockStripes = 256

type stripedLocks struct {
	mu [lockStripes]sync.Mutex
}

func (s *stripedLocks) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.mu[h.Sum32()%lockStripes]
	m.Lock()
	return m
}
