package ruleset

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// SetMeta is the metadata stored alongside one rule set.
type SetMeta struct {
	Version     uint64 // incremented on every Put, starting at 1
	UpdatedUnix int64  // caller-supplied update time
	Rules       int    // number of rules in the stored matcher
}

// StoreStats reports lightweight store metrics.
type StoreStats struct {
	RuleSets uint64 // number of stored rule sets
	Rules    uint64 // total rules across all sets
}

// RepoStats exposes repository-level counters.
type RepoStats struct {
	Name        string
	Rules       int
	Version     uint64
	UpdatedUnix int64
	BloomActive bool   // false when a masked accept rule disables the prefilter
	BloomSkips  uint64 // lookups where the prefilter ruled out every accept rule
	Cache       CacheStats
	Store       StoreStats
}
