// Package reservation implements the Reservation store and the local
// Authorization Cache: both are small, bounded, persistent collections
// the connector consults before round-tripping to the CS.
package reservation

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// CacheEntry is one entry of the local Authorization Cache. IdTagHash
// holds a bcrypt digest of the id tag rather than the printable value,
// so a stolen cache file on disk doesn't leak RFID tag contents.
type CacheEntry struct {
	IdTagHash   string                 `json:"idTagHash"`
	Status      v16.AuthorizationStatus `json:"status"`
	ParentIdTag string                 `json:"parentIdTag,omitempty"`
	ExpiryDate  *time.Time             `json:"expiryDate,omitempty"`
	lastUsed    time.Time
}

// Cache is the bounded, LRU-evicted, persistent local Authorization Cache.
type Cache struct {
	fs       fsadapter.FS
	path     string
	maxSize  int
	entries  []CacheEntry
}

// NewCache creates a Cache backed by a single checkpoint file.
func NewCache(fs fsadapter.FS, path string, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache{fs: fs, path: path, maxSize: maxSize}
}

type wireEntry struct {
	IdTagHash   string                  `json:"idTagHash"`
	Status      v16.AuthorizationStatus `json:"status"`
	ParentIdTag string                  `json:"parentIdTag,omitempty"`
	ExpiryDate  *time.Time              `json:"expiryDate,omitempty"`
}

// Load restores the cache checkpoint, if one exists.
func (c *Cache) Load() error {
	data, err := fsadapter.ReadAll(c.fs, c.path)
	if err != nil {
		return nil // no checkpoint yet, not an error
	}
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	now := time.Now()
	c.entries = c.entries[:0]
	for _, w := range wire {
		c.entries = append(c.entries, CacheEntry{
			IdTagHash:   w.IdTagHash,
			Status:      w.Status,
			ParentIdTag: w.ParentIdTag,
			ExpiryDate:  w.ExpiryDate,
			lastUsed:    now,
		})
	}
	return nil
}

func (c *Cache) save() error {
	wire := make([]wireEntry, len(c.entries))
	for i, e := range c.entries {
		wire[i] = wireEntry{IdTagHash: e.IdTagHash, Status: e.Status, ParentIdTag: e.ParentIdTag, ExpiryDate: e.ExpiryDate}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return fsadapter.WriteAll(c.fs, c.path, data)
}

func (c *Cache) indexOf(idTag string) int {
	for i, e := range c.entries {
		if bcrypt.CompareHashAndPassword([]byte(e.IdTagHash), []byte(idTag)) == nil {
			return i
		}
	}
	return -1
}

// Put inserts or refreshes a cache entry, evicting the least-recently-used
// entry if the cache is full.
func (c *Cache) Put(idTag string, status v16.AuthorizationStatus, parentIdTag string, expiry *time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(idTag), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	if idx := c.indexOf(idTag); idx >= 0 {
		c.entries[idx].Status = status
		c.entries[idx].ParentIdTag = parentIdTag
		c.entries[idx].ExpiryDate = expiry
		c.entries[idx].lastUsed = now
		return c.save()
	}
	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries = append(c.entries, CacheEntry{
		IdTagHash:   string(hash),
		Status:      status,
		ParentIdTag: parentIdTag,
		ExpiryDate:  expiry,
		lastUsed:    now,
	})
	return c.save()
}

func (c *Cache) evictLRU() {
	if len(c.entries) == 0 {
		return
	}
	oldest := 0
	for i, e := range c.entries {
		if e.lastUsed.Before(c.entries[oldest].lastUsed) {
			oldest = i
		}
	}
	c.entries = append(c.entries[:oldest], c.entries[oldest+1:]...)
}

// Lookup reports whether idTag has a cache entry and whether it is
// currently valid (status Accepted and not expired), refreshing its
// LRU timestamp on hit. This directly backs connector.LocalAuthProbe.
func (c *Cache) Lookup(idTag string) (cached, valid bool) {
	idx := c.indexOf(idTag)
	if idx < 0 {
		return false, false
	}
	c.entries[idx].lastUsed = time.Now()
	e := c.entries[idx]
	if e.ExpiryDate != nil && time.Now().After(*e.ExpiryDate) {
		return true, false
	}
	return true, e.Status == v16.AuthorizationStatusAccepted
}

// Clear empties the cache (ClearCache.req).
func (c *Cache) Clear() error {
	c.entries = nil
	return c.save()
}

// Len reports the current entry count.
func (c *Cache) Len() int { return len(c.entries) }
