package ruleset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-bytes/internal/match/common/clock"
	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/domain"
)

var (
	// ErrNoStore is returned by Reload when the repository has no backing store.
	ErrNoStore = errors.New("no rule set store configured")
	// ErrRuleSetNotFound is returned when the named rule set is absent from the store.
	ErrRuleSetNotFound = errors.New("rule set not found")
)

// Bloom key tags keep exact patterns and prefix anchors apart.
const (
	keyTagExact  byte = 'e'
	keyTagPrefix byte = 'p'
)

// Options configures a Repository. Only Name is required.
type Options struct {
	Name    string
	Store   Store         // nil: updates are not persisted and Reload fails
	Cache   DecisionCache // nil: decisions are not cached
	Factory BloomFactory  // nil: no accept prefilter
	FPRate  float64
	Clock   clock.Clock
	Logger  log.Logger
}

// snapshot is an immutable view of one rule-set generation.
type snapshot struct {
	matcher    *domain.Matcher
	bloom      BloomFilter // nil when the prefilter cannot be used
	prefixLens []int       // distinct prefix-accept lengths, ascending
	version    uint64
	updated    int64
}

// repository implements Repository. Readers take the current snapshot and
// never see a partially built matcher; writers build a new snapshot and swap it.
type repository struct {
	mu      sync.RWMutex
	snap    *snapshot
	name    string
	store   Store
	cache   DecisionCache
	factory BloomFactory
	fpRate  float64
	clock   clock.Clock
	logger  log.Logger

	bloomSkips uint64
}

// NewRepository constructs a Repository serving an empty (reject-all) matcher
// until Update or Reload is called.
func NewRepository(opts Options) Repository {
	r := &repository{
		name:    opts.Name,
		store:   opts.Store,
		cache:   opts.Cache,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if r.cache == nil {
		r.cache = noCache{}
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	r.snap = r.buildSnapshot(domain.NewMatcher(), 0, 0)
	return r
}

// Test reports whether candidate is accepted. A negative prefilter answer
// rejects without consulting cache or matcher.
func (r *repository) Test(candidate []byte) bool {
	s := r.current()
	if !s.mightAccept(candidate) {
		atomic.AddUint64(&r.bloomSkips, 1)
		return false
	}
	return r.decide(s, candidate).Accepted
}

// Decide returns the full decision for candidate. When the prefilter rules out
// every accept rule, only reject rules are scanned.
func (r *repository) Decide(candidate []byte) domain.Decision {
	return r.decide(r.current(), candidate)
}

func (r *repository) decide(s *snapshot, candidate []byte) domain.Decision {
	key := string(candidate)
	r.mu.RLock()
	d, ok := r.cache.Get(key)
	r.mu.RUnlock()
	if ok {
		return d
	}

	if s.mightAccept(candidate) {
		d = s.matcher.Decide(candidate)
	} else {
		atomic.AddUint64(&r.bloomSkips, 1)
		d = s.matcher.DecideRejects(candidate)
	}

	// only cache decisions of the generation still being served
	r.mu.Lock()
	if r.snap == s {
		r.cache.Put(key, d)
	}
	r.mu.Unlock()
	return d
}

// Update persists m (when a store is configured), then swaps it in and purges the cache.
// On error the served matcher is unchanged.
func (r *repository) Update(m *domain.Matcher) error {
	if m == nil {
		m = domain.NewMatcher()
	}
	cp := m.Clone()
	updated := r.clock.Now().Unix()

	var version uint64
	if r.store != nil {
		v, err := r.store.Put(r.name, cp, updated)
		if err != nil {
			return fmt.Errorf("persist rule set %q: %w", r.name, err)
		}
		version = v
	}

	r.swap(r.buildSnapshot(cp, version, updated))
	return nil
}

// Reload replaces the served matcher with the stored copy of the rule set.
func (r *repository) Reload() error {
	if r.store == nil {
		return ErrNoStore
	}
	m, meta, ok, err := r.store.Get(r.name)
	if err != nil {
		return fmt.Errorf("load rule set %q: %w", r.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrRuleSetNotFound, r.name)
	}
	r.swap(r.buildSnapshot(m, meta.Version, meta.UpdatedUnix))
	return nil
}

// Matcher returns a copy of the served matcher.
func (r *repository) Matcher() *domain.Matcher {
	return r.current().matcher.Clone()
}

// RepoStats reports counters of the repository and its collaborators.
func (r *repository) RepoStats() RepoStats {
	s := r.current()
	st := RepoStats{
		Name:        r.name,
		Rules:       s.matcher.Len(),
		Version:     s.version,
		UpdatedUnix: s.updated,
		BloomActive: s.bloom != nil,
		BloomSkips:  atomic.LoadUint64(&r.bloomSkips),
		Cache:       r.cache.Stats(),
	}
	if r.store != nil {
		st.Store = r.store.Stats()
	}
	return st
}

func (r *repository) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *repository) swap(s *snapshot) {
	r.mu.Lock()
	r.snap = s
	r.cache.Purge()
	r.mu.Unlock()

	r.logger.Info(map[string]any{
		"ruleset": r.name,
		"rules":   s.matcher.Len(),
		"version": s.version,
		"bloom":   s.bloom != nil,
	}, "rule set activated")
}

// buildSnapshot indexes the accept rules of m into a Bloom filter.
// Masked accept rules cannot be keyed, so any of them disables the prefilter.
func (r *repository) buildSnapshot(m *domain.Matcher, version uint64, updated int64) *snapshot {
	s := &snapshot{matcher: m, version: version, updated: updated}
	if r.factory == nil {
		return s
	}

	rules := m.Rules()
	var accepts uint64
	for _, ru := range rules {
		if ru.Disposition != domain.Accept {
			continue
		}
		if ru.IsMasked() {
			r.logger.Debug(map[string]any{"ruleset": r.name, "rule": ru.String()}, "bloom_disabled_masked_accept")
			return s
		}
		accepts++
	}

	bf := r.factory.New(accepts, r.fpRate)
	lens := make(map[int]struct{})
	for _, ru := range rules {
		if ru.Disposition != domain.Accept {
			continue
		}
		if ru.IsPrefix() {
			bf.Add(bloomKey(keyTagPrefix, ru.Value))
			lens[len(ru.Value)] = struct{}{}
		} else {
			bf.Add(bloomKey(keyTagExact, ru.Value))
		}
	}
	s.bloom = bf
	for l := range lens {
		s.prefixLens = append(s.prefixLens, l)
	}
	sort.Ints(s.prefixLens)
	return s
}

// mightAccept returns false only when no accept rule can match candidate.
func (s *snapshot) mightAccept(candidate []byte) bool {
	if s.bloom == nil {
		return true
	}
	if s.bloom.MightContain(bloomKey(keyTagExact, candidate)) {
		return true
	}
	for _, l := range s.prefixLens {
		if l > len(candidate) {
			break
		}
		if s.bloom.MightContain(bloomKey(keyTagPrefix, candidate[:l])) {
			return true
		}
	}
	return false
}

func bloomKey(tag byte, b []byte) []byte {
	k := make([]byte, 0, len(b)+1)
	k = append(k, tag)
	return append(k, b...)
}

// noCache is the DecisionCache used when none is configured.
type noCache struct{}

func (noCache) Get(string) (domain.Decision, bool) { return domain.Decision{}, false }
func (noCache) Put(string, domain.Decision)        {}
func (noCache) Len() int                           { return 0 }
func (noCache) Purge()                             {}
func (noCache) Stats() CacheStats                  { return CacheStats{} }
