package cache

import (
	"context"
	"time"

	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
)

// EnumCache caches ENUM type/value metadata read from the
// __pgsqlite_enum_* tables, keyed both by name and by OID, grounded on
// original_source/src/cache/enum_cache.rs's EnumCache (there backed by
// two parallel HashMaps plus a values-by-type map; here by three
// instances of the shared generic Cache since name/OID/values lookups
// each need independent LRU behavior).
type EnumCache struct {
	byName      *Cache[string, metadata.EnumType]
	byOID       *Cache[uint32, metadata.EnumType]
	valuesByOID *Cache[uint32, []metadata.EnumValue]
}

func NewEnumCache(ttl time.Duration) *EnumCache {
	return &EnumCache{
		byName:      New[string, metadata.EnumType](0, ttl),
		byOID:       New[uint32, metadata.EnumType](0, ttl),
		valuesByOID: New[uint32, []metadata.EnumValue](0, ttl),
	}
}

func (c *EnumCache) Clear() {
	c.byName.Clear()
	c.byOID.Clear()
	c.valuesByOID.Clear()
}

func (c *EnumCache) put(et metadata.EnumType) {
	c.byName.Put(et.Name, et)
	c.byOID.Put(et.OID, et)
}

// EnumTypeByName returns the named ENUM type, consulting store only on a
// cache miss.
func (c *EnumCache) EnumTypeByName(ctx context.Context, store *metadata.Store, name string) (metadata.EnumType, bool, error) {
	if et, ok := c.byName.Get(name); ok {
		return et, true, nil
	}
	et, found, err := store.EnumTypeByName(ctx, name)
	if err != nil || !found {
		return et, found, err
	}
	c.put(et)
	return et, true, nil
}

// EnumValues returns the ordered label set for typeOID, consulting store
// only on a cache miss.
func (c *EnumCache) EnumValues(ctx context.Context, store *metadata.Store, typeOID uint32) ([]metadata.EnumValue, error) {
	if vals, ok := c.valuesByOID.Get(typeOID); ok {
		return vals, nil
	}
	vals, err := store.EnumValues(ctx, typeOID)
	if err != nil {
		return nil, err
	}
	c.valuesByOID.Put(typeOID, vals)
	return vals, nil
}
