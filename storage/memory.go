// Package storage provides platform.Storage backends.
package storage

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps values in process memory. Values never expire.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.cache.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}
