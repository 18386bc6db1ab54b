package proxy

import (
	"sync"
	"time"
)

const (
	domainPrefTTL        = 5 * time.Minute
	domainPrefMaxEntries = 1024
)

type domainPref struct {
	needsSecondaryHop bool
	successes         int
	failures          int
	updatedAt         time.Time
}

// DomainPrefs remembers, per origin domain, whether the secondary proxy
// hop was previously required. It is a performance hint only: a stale or
// wrong answer costs extra fallback attempts, never correctness, because
// the fetch engine always re-verifies over the wire.
type DomainPrefs struct {
	mu      sync.RWMutex
	entries map[string]*domainPref
	ttl     time.Duration
	max     int
}

func NewDomainPrefs() *DomainPrefs {
	return &DomainPrefs{
		entries: make(map[string]*domainPref),
		ttl:     domainPrefTTL,
		max:     domainPrefMaxEntries,
	}
}

// ShouldPreferSecondaryHop reports whether past fetches for this domain
// needed the secondary hop. Expired entries are removed on read.
func (d *DomainPrefs) ShouldPreferSecondaryHop(domain string) bool {
	d.mu.RLock()
	entry, ok := d.entries[domain]
	if ok && time.Since(entry.updatedAt) <= d.ttl {
		prefer := entry.needsSecondaryHop
		d.mu.RUnlock()
		return prefer
	}
	d.mu.RUnlock()

	if ok {
		// Expired: drop it to bound memory
		d.mu.Lock()
		if entry, ok := d.entries[domain]; ok && time.Since(entry.updatedAt) > d.ttl {
			delete(d.entries, domain)
		}
		d.mu.Unlock()
	}
	return false
}

// RecordSecondaryHopSuccess marks the domain as needing the secondary hop.
func (d *DomainPrefs) RecordSecondaryHopSuccess(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[domain]
	if !ok {
		d.evictIfFullLocked()
		entry = &domainPref{}
		d.entries[domain] = entry
	}
	entry.needsSecondaryHop = true
	entry.successes++
	entry.updatedAt = time.Now()
}

// RecordDirectSuccess clears the secondary-hop preference for a domain
// that is answering direct requests again. No entry is created: a domain
// only enters the cache once the secondary hop succeeded for it.
func (d *DomainPrefs) RecordDirectSuccess(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.entries[domain]; ok {
		entry.needsSecondaryHop = false
		entry.successes++
		entry.updatedAt = time.Now()
	}
}

// RecordSecondaryHopFailure counts a failed secondary-hop fetch.
func (d *DomainPrefs) RecordSecondaryHopFailure(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.entries[domain]; ok {
		entry.failures++
		entry.updatedAt = time.Now()
	}
}

// Len reports the current entry count.
func (d *DomainPrefs) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// evictIfFullLocked clears the whole map once the cap is hit, so a
// hostile set of domains cannot grow it without bound.
func (d *DomainPrefs) evictIfFullLocked() {
	if len(d.entries) >= d.max {
		d.entries = make(map[string]*domainPref)
	}
}
