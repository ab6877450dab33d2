package ruleset

import "github.com/haukened/rr-bytes/internal/match/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a BloomFilter sized for capacity keys at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches decisions keyed by the raw candidate bytes.
type DecisionCache interface {
	Get(key string) (domain.Decision, bool)
	Put(key string, d domain.Decision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store persists named rule sets.
// - Put stores a matcher under name and returns the new snapshot version
// - Get returns the matcher and its metadata, ok=false when absent
// - Names lists stored rule sets in key order
type Store interface {
	Put(name string, m *domain.Matcher, updatedUnix int64) (uint64, error)
	Get(name string) (*domain.Matcher, SetMeta, bool, error)
	Delete(name string) error
	Names() ([]string, error)
	Stats() StoreStats
	Close() error
}

// Repository serves decisions for one named rule set. It composes
// bloom -> cache -> matcher on reads and swaps whole matchers on writes.
type Repository interface {
	Decide(candidate []byte) domain.Decision
	Test(candidate []byte) bool
	Update(m *domain.Matcher) error
	Reload() error
	Matcher() *domain.Matcher
	RepoStats() RepoStats
}
