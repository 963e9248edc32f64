package nametag

import (
	"strings"
	"sync"
)

// repository wires cache → bloom → store. Reads are lock-free apart from
// the bloom swap guard; UpdateAll performs an atomic snapshot update.
type repository struct {
	mu     sync.RWMutex
	store  Store
	cache  TagCache
	bloom  BloomFilter
	fpRate float64
}

// NewRepository constructs a Repository. fpRate is the target
// false-positive rate for the Bloom prefilter when rebuilding.
func NewRepository(store Store, cache TagCache, fpRate float64) Repository {
	return &repository{store: store, cache: cache, fpRate: fpRate}
}

// Decide returns the tag for name. Internal errors prefer TagNone so a
// broken list never blocks resolution.
func (r *repository) Decide(name string) Tag {
	cn := canonicalName(name)
	if cn == "" {
		return TagNone
	}
	// definitively unlisted names never touch cache or disk
	if !r.maybeListed(cn) {
		return TagNone
	}
	if t, ok := r.cache.Get(cn); ok {
		return t
	}
	t := r.lookupStore(cn)
	r.cache.Put(cn, t)
	return t
}

// UpdateAll rebuilds the store, builds a fresh Bloom filter sized for the
// rules, then swaps the filter and purges the decision cache.
func (r *repository) UpdateAll(rules []Rule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := NewBloom(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		bf.Add([]byte(ReverseName(ru.Name)))
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// maybeListed tests every suffix candidate against the Bloom filter,
// most-specific first. False means no candidate can be in the store. A nil
// filter (never updated) falls through to the authoritative store.
func (r *repository) maybeListed(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	for a := cn; a != ""; a = parentDomain(a) {
		if bf.MightContain([]byte(ReverseName(a))) {
			return true
		}
	}
	return false
}

// lookupStore consults the anchor index, most-specific candidate first, so
// a subdomain entry overrides its apex.
func (r *repository) lookupStore(cn string) Tag {
	for a := cn; a != ""; a = parentDomain(a) {
		if t, ok, err := r.store.GetAnchor(ReverseName(a)); err == nil && ok {
			return t
		}
	}
	return TagNone
}

// parentDomain strips the leftmost label, returning "" at the apex.
func parentDomain(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// canonicalName lowercases a name and trims surrounding dots.
func canonicalName(s string) string {
	return strings.Trim(strings.ToLower(s), ".")
}
