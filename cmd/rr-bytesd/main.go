package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-bytes/internal/match/common/clock"
	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/config"
	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/observability"
	"github.com/haukened/rr-bytes/internal/match/repos/policy"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/bloom"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/bolt"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/lru"
)

const (
	version = "0.1.0-dev"
	appName = "rr-bytesd"
)

// Application holds all the components of the matcher daemon
type Application struct {
	config   *config.AppConfig
	clock    clock.Clock
	logger   log.Logger
	store    ruleset.Store
	repo     ruleset.Repository
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"policy_dir":    cfg.PolicyDir,
		"store_path":    cfg.StorePath,
		"ruleset":       cfg.RuleSet,
		"cache_size":    cfg.CacheSize,
		"bloom_fp_rate": cfg.BloomFPRate,
		"metrics_file":  cfg.MetricsFile,
	}, "Starting "+appName)

	app, err := buildApplication(cfg, clock.RealClock{}, log.GetLogger())
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}
	defer app.Close()

	if err := app.Refresh(); err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to load rule sets")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if err := app.Refresh(); err != nil {
					log.Error(map[string]any{"error": err}, "Rule set refresh failed, keeping current rules")
				}
				continue
			}
			log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
			cancel()
			return
		}
	}()

	if err := app.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error(map[string]any{"error": err}, "Matcher stopped with error")
	}
	app.flushMetrics()
	log.Info(nil, appName+" stopped")
}

// buildApplication constructs the store, cache, prefilter and repository and wires them together
func buildApplication(cfg *config.AppConfig, clk clock.Clock, logger log.Logger) (*Application, error) {
	store, err := bolt.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule set store: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize > uint(^uint(0)>>1) {
		_ = store.Close()
		return nil, fmt.Errorf("cache size too large: %d", cacheSize)
	}
	cache, err := lru.New(int(cacheSize))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	repo := ruleset.NewRepository(ruleset.Options{
		Name:    cfg.RuleSet,
		Store:   store,
		Cache:   cache,
		Factory: bloom.NewFactory(),
		FPRate:  cfg.BloomFPRate,
		Clock:   clk,
		Logger:  logger,
	})

	registry := prometheus.NewRegistry()
	return &Application{
		config:   cfg,
		clock:    clk,
		logger:   logger,
		store:    store,
		repo:     repo,
		registry: registry,
		metrics:  observability.NewMetrics(registry),
	}, nil
}

// Refresh loads the policy directory into the store and activates the configured rule set.
// Policy files are validated as a whole before anything is written.
func (app *Application) Refresh() error {
	err := app.refresh()
	app.metrics.ObserveRefresh(err)
	app.flushMetrics()
	return err
}

func (app *Application) refresh() error {
	if app.config.PolicyDir != "" {
		sets, err := policy.LoadPolicyDirectory(app.config.PolicyDir, app.logger)
		if err != nil {
			return fmt.Errorf("failed to load policy directory: %w", err)
		}
		now := app.clock.Now().Unix()
		var active *domain.Matcher
		for _, rs := range sets {
			if rs.Name == app.config.RuleSet {
				active = rs.Matcher
				continue
			}
			if _, err := app.store.Put(rs.Name, rs.Matcher, now); err != nil {
				return fmt.Errorf("failed to store rule set %q: %w", rs.Name, err)
			}
		}
		// the served set changes only once every other set is stored
		if active != nil {
			return app.repo.Update(active)
		}
	}

	err := app.repo.Reload()
	if errors.Is(err, ruleset.ErrRuleSetNotFound) {
		app.logger.Warn(map[string]any{"ruleset": app.config.RuleSet}, "Rule set not found, rejecting all candidates")
		return nil
	}
	return err
}

// Run evaluates one hex candidate per input line until input ends or ctx is cancelled.
// Each line yields "<hex>\t<accept|reject>\t<matched rule or ->".
func (app *Application) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		defer close(lines)
		defer func() { scanErr <- sc.Err() }()
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	st := app.repo.RepoStats()
	app.logger.Info(map[string]any{
		"ruleset": st.Name,
		"rules":   st.Rules,
		"version": st.Version,
	}, "Matcher ready")

	w := bufio.NewWriter(out)
	defer w.Flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return <-scanErr
			}
			if err := app.evaluate(w, line); err != nil {
				return err
			}
		}
	}
}

func (app *Application) evaluate(w *bufio.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	candidate, err := domain.ParseCandidate(line)
	if err != nil {
		app.logger.Warn(map[string]any{"input": line, "error": err.Error()}, "Invalid candidate")
		_, werr := fmt.Fprintf(w, "%s\terror\t%v\n", line, err)
		return werr
	}

	d := app.repo.Decide(candidate)
	app.metrics.ObserveDecision(app.config.RuleSet, d)
	verdict, rule := "reject", "-"
	if d.Accepted {
		verdict = "accept"
	}
	if d.Matched {
		rule = d.Rule.String()
	}
	app.logger.Debug(map[string]any{"candidate": hex.EncodeToString(candidate), "verdict": verdict, "rule_index": d.RuleIndex}, "decision")
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", hex.EncodeToString(candidate), verdict, rule); err != nil {
		return err
	}
	return w.Flush()
}

// flushMetrics writes the metrics textfile when one is configured.
func (app *Application) flushMetrics() {
	if app.config.MetricsFile == "" {
		return
	}
	app.metrics.ObserveRepo(app.repo.RepoStats())
	if err := observability.WriteTextfile(app.config.MetricsFile, app.registry); err != nil {
		app.logger.Warn(map[string]any{"path": app.config.MetricsFile, "error": err.Error()}, "Failed to write metrics")
	}
}

// Close releases the rule set store.
func (app *Application) Close() error {
	return app.store.Close()
}
