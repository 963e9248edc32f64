// Package nametag classifies queried domain names against the relay's
// domain lists (gfwlist/chnlist). Lookups run a cache → bloom → store
// pipeline: an LRU of recent decisions, a Bloom prefilter that lets names
// in neither list pass without touching disk, and a Bolt-backed index of
// suffix anchors as the authority.
package nametag

// Tag is the routing tag attached to a domain name.
type Tag uint8

const (
	// TagNone means the name is in neither list; both upstream groups are
	// queried and the reply is chosen by address classification.
	TagNone Tag = iota
	// TagGFW means the name is gfwlist-listed; only the trusted group is used.
	TagGFW
	// TagChn means the name is chnlist-listed; only the domestic group is used.
	TagChn
)

// String returns the textual form of the tag.
func (t Tag) String() string {
	switch t {
	case TagGFW:
		return "gfw"
	case TagChn:
		return "chn"
	default:
		return "none"
	}
}

// ParseTag converts a tag name to its value. Unknown names map to TagNone.
func ParseTag(s string) Tag {
	switch s {
	case "gfw":
		return TagGFW
	case "chn":
		return TagChn
	default:
		return TagNone
	}
}

// Rule is one domain list entry. Every entry matches the named domain and
// all of its subdomains.
type Rule struct {
	Name string
	Tag  Tag
}

// Store is the persistent suffix-anchor index. Keys are reversed domain
// names; values are tags.
type Store interface {
	// GetAnchor returns the tag stored for one reversed suffix anchor.
	GetAnchor(reversed string) (Tag, bool, error)
	// RebuildAll atomically replaces the index contents.
	RebuildAll(rules []Rule, version uint64, updatedUnix int64) error
	// Stats returns anchor count and metadata.
	Stats() StoreStats
	Close() error
}

// StoreStats captures counts and metadata for the persistent store.
type StoreStats struct {
	AnchorCount uint64
	Version     uint64
	UpdatedUnix int64
}

// TagCache caches tag decisions by canonical name with basic metrics.
type TagCache interface {
	Get(name string) (Tag, bool)
	Put(name string, t Tag)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// BloomFilter is the minimal prefilter interface the repository needs.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// Repository is the composition layer consulted once per query.
type Repository interface {
	// Decide returns the tag for a dotted-ASCII domain name.
	Decide(name string) Tag
	// UpdateAll rebuilds the store, refreshes the Bloom filter, and purges
	// the decision cache as one snapshot swap.
	UpdateAll(rules []Rule, version uint64, updatedUnix int64) error
}
