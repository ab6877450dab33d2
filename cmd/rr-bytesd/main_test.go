package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-bytes/internal/match/common/clock"
	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/config"
	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DEFAULT_APP_CONFIG
	cfg.PolicyDir = t.TempDir()
	cfg.StorePath = filepath.Join(t.TempDir(), "rulesets.db")
	cfg.RuleSet = "scan"
	cfg.CacheSize = 16
	return &cfg
}

func newTestApp(t *testing.T, cfg *config.AppConfig) *Application {
	t.Helper()
	clk := &clock.MockClock{CurrentTime: time.Unix(1700000000, 0)}
	app, err := buildApplication(cfg, clk, log.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func writePolicy(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestApplication_RefreshActivatesConfiguredRuleSet(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", `
rulesets:
  scan:
    encoded: "-ff/0f,+ff/f0"
  other:
    rules: ["+aa"]
`)
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())

	assert.Equal(t, "-ff/0f,+ff/f0", app.repo.Matcher().Encode())
	names, err := app.store.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "scan"}, names)

	st := app.repo.RepoStats()
	assert.Equal(t, "scan", st.Name)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, int64(1700000000), st.UpdatedUnix)
}

func TestApplication_RefreshMissingRuleSetRejectsAll(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.json", `{"rulesets": {"other": {"encoded": "+aa"}}}`)
	app := newTestApp(t, cfg)

	require.NoError(t, app.Refresh())
	assert.Equal(t, 0, app.repo.Matcher().Len())
	assert.False(t, app.repo.Test([]byte{0xaa}))
}

func TestApplication_RefreshFromStoreWithoutPolicyDir(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"⊆ca\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())
	require.NoError(t, app.Close())

	cfg.PolicyDir = ""
	reopened := newTestApp(t, cfg)
	require.NoError(t, reopened.Refresh())
	assert.Equal(t, "⊆ca", reopened.repo.Matcher().Encode())
}

func TestApplication_RefreshMalformedPolicyKeepsRules(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"+aa\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())

	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"+a\"\n")
	require.Error(t, app.Refresh())
	assert.Equal(t, "+aa", app.repo.Matcher().Encode())
}

func TestApplication_Run(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"-020000000000/020000000000,⊆0011\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())

	in := strings.Join([]string{
		"# candidates",
		"00:11:22:33:44:55",
		"02-11-22-33-44-55",
		"",
		"abcd",
		"zz",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, app.Run(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "001122334455\taccept\t⊆0011", lines[0])
	assert.Equal(t, "021122334455\treject\t-020000000000/020000000000", lines[1])
	assert.Equal(t, "abcd\treject\t-", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "zz\terror\t"), lines[3])
}

type blockingReader struct{ done chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.done
	return 0, errors.New("closed")
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.PolicyDir = ""
	app := newTestApp(t, cfg)

	r := blockingReader{done: make(chan struct{})}
	defer close(r.done)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx, r, &bytes.Buffer{}) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestBuildApplication_InvalidStorePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorePath = filepath.Join(t.TempDir(), "missing", "dir", "rulesets.db")
	_, err := buildApplication(cfg, clock.RealClock{}, log.NewNoopLogger())
	require.Error(t, err)
}

func TestApplication_WritesMetricsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "rr_bytes.prom")
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"+aa,+bb\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())

	var out bytes.Buffer
	require.NoError(t, app.Run(context.Background(), strings.NewReader("aa\ncc\n"), &out))
	app.flushMetrics()

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `rr_bytes_refreshes_total{result="ok"} 1`)
	assert.Contains(t, text, `rr_bytes_rules{ruleset="scan"} 2`)
	assert.Contains(t, text, `rr_bytes_decisions_total{matched="true",ruleset="scan",verdict="accept"} 1`)
	assert.Contains(t, text, `rr_bytes_decisions_total{matched="false",ruleset="scan",verdict="reject"} 1`)
}

// gatedWriter blocks every write until release is closed.
type gatedWriter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return len(p), nil
}

func TestApplication_RunStopsWhenCancelledMidInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.PolicyDir = ""
	app := newTestApp(t, cfg)

	for round := 0; round < 40; round++ {
		w := &gatedWriter{started: make(chan struct{}), release: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- app.Run(ctx, strings.NewReader("aa\nbb\ncc\n"), w) }()

		<-w.started
		cancel()
		close(w.release)

		select {
		case err := <-errCh:
			require.NoError(t, err, "round %d", round)
		case <-time.After(2 * time.Second):
			t.Fatalf("Run did not stop after cancel in round %d", round)
		}
	}
}

func TestApplication_RunUsesPrefilter(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"+aa,+bb,-c0/f0\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())
	require.True(t, app.repo.RepoStats().BloomActive)

	var out bytes.Buffer
	require.NoError(t, app.Run(context.Background(), strings.NewReader("aa\nc3\ndd\nee\n"), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "aa\taccept\t+aa", lines[0])
	assert.Equal(t, "c3\treject\t-c0/f0", lines[1])
	assert.Equal(t, "dd\treject\t-", lines[2])
	assert.Greater(t, app.repo.RepoStats().BloomSkips, uint64(0))
}

// failingStore fails Put for one rule set name.
type failingStore struct {
	ruleset.Store
	name string
}

func (f failingStore) Put(name string, m *domain.Matcher, updatedUnix int64) (uint64, error) {
	if name == f.name {
		return 0, fmt.Errorf("put %s: disk full", name)
	}
	return f.Store.Put(name, m, updatedUnix)
}

func TestApplication_RefreshStoreFailureKeepsServedRules(t *testing.T) {
	cfg := testConfig(t)
	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"+aa\"\n")
	app := newTestApp(t, cfg)
	require.NoError(t, app.Refresh())

	writePolicy(t, cfg.PolicyDir, "policy.yaml", "rulesets:\n  scan:\n    encoded: \"-aa\"\n  zz:\n    encoded: \"+bb\"\n")
	app.store = failingStore{Store: app.store, name: "zz"}

	require.Error(t, app.Refresh())
	assert.Equal(t, "+aa", app.repo.Matcher().Encode())
	assert.Equal(t, uint64(1), app.repo.RepoStats().Version)
}
