// Package observability exports matcher counters in Prometheus form.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
)

type Metrics struct {
	decisionsTotal *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec
	rules          *prometheus.GaugeVec
	version        *prometheus.GaugeVec
	bloomActive    *prometheus.GaugeVec
	bloomSkips     *prometheus.GaugeVec
	cacheEntries   *prometheus.GaugeVec
	cacheHits      *prometheus.GaugeVec
	cacheMisses    *prometheus.GaugeVec
	storedRuleSets prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	set := []string{"ruleset"}
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rr_bytes_decisions_total", Help: "Total candidate decisions"},
			[]string{"ruleset", "verdict", "matched"},
		),
		refreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rr_bytes_refreshes_total", Help: "Total rule set refreshes"},
			[]string{"result"},
		),
		rules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_rules", Help: "Rules in the served matcher"}, set),
		version: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_ruleset_version", Help: "Stored version of the served rule set"}, set),
		bloomActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_bloom_active", Help: "1 when the accept prefilter is in use"}, set),
		bloomSkips: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_bloom_skips", Help: "Tests answered by the prefilter alone"}, set),
		cacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_cache_entries", Help: "Decision cache entries"}, set),
		cacheHits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_cache_hits", Help: "Decision cache hits"}, set),
		cacheMisses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rr_bytes_cache_misses", Help: "Decision cache misses"}, set),
		storedRuleSets: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "rr_bytes_stored_rulesets", Help: "Rule sets in the persistent store"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.decisionsTotal,
		m.refreshesTotal,
		m.rules,
		m.version,
		m.bloomActive,
		m.bloomSkips,
		m.cacheEntries,
		m.cacheHits,
		m.cacheMisses,
		m.storedRuleSets,
	)
	return m
}

// ObserveDecision counts one decision against the named rule set.
func (m *Metrics) ObserveDecision(name string, d domain.Decision) {
	if m == nil {
		return
	}
	verdict := "reject"
	if d.Accepted {
		verdict = "accept"
	}
	matched := "false"
	if d.Matched {
		matched = "true"
	}
	m.decisionsTotal.WithLabelValues(name, verdict, matched).Inc()
}

// ObserveRefresh counts a refresh attempt.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshesTotal.WithLabelValues(result).Inc()
}

// ObserveRepo copies repository stats into the gauges.
func (m *Metrics) ObserveRepo(st ruleset.RepoStats) {
	if m == nil {
		return
	}
	m.rules.WithLabelValues(st.Name).Set(float64(st.Rules))
	m.version.WithLabelValues(st.Name).Set(float64(st.Version))
	active := 0.0
	if st.BloomActive {
		active = 1
	}
	m.bloomActive.WithLabelValues(st.Name).Set(active)
	m.bloomSkips.WithLabelValues(st.Name).Set(float64(st.BloomSkips))
	m.cacheEntries.WithLabelValues(st.Name).Set(float64(st.Cache.Size))
	m.cacheHits.WithLabelValues(st.Name).Set(float64(st.Cache.Hits))
	m.cacheMisses.WithLabelValues(st.Name).Set(float64(st.Cache.Misses))
	m.storedRuleSets.Set(float64(st.Store.RuleSets))
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
