package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// StorageRepository keeps serialized conversations in process memory. Records
// never expire; they live as long as the process, like a browser profile's
// local storage lives as long as the profile.
type StorageRepository struct {
	cache *cache.Cache
}

func NewStorageRepository() *StorageRepository {
	// Items never expire, so the janitor only needs to run rarely.
	c := cache.New(cache.NoExpiration, 1*time.Hour)
	return &StorageRepository{
		cache: c,
	}
}

func (r *StorageRepository) Get(_ context.Context, key string) (string, bool, error) {
	if x, found := r.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (r *StorageRepository) Set(_ context.Context, key, value string) error {
	r.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (r *StorageRepository) Remove(_ context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}

// Len reports how many records are stored.
func (r *StorageRepository) Len() int {
	return r.cache.ItemCount()
}
