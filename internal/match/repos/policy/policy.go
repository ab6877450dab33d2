// Package policy loads named rule sets from YAML, JSON and TOML policy files.
//
// A policy file declares one or more rule sets under the "rulesets" key:
//
//	rulesets:
//	  scan-filter:
//	    encoded: "-ff/0f,+ff/f0"
//	    rules: ["⊆cafe", "⊈beef"]
//	    list: scan-filter.list
//
// Rules are appended in the order encoded, rules, list. The list path is a plain
// rule list resolved relative to the policy file.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	logpkg "github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/config"
	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/parsers"
)

var (
	// ErrDuplicateRuleSet indicates the same rule set name declared in two files.
	ErrDuplicateRuleSet = errors.New("duplicate rule set")
	// ErrInvalidRuleSetName indicates a rule set name that cannot be used as a store key.
	ErrInvalidRuleSetName = errors.New("invalid rule set name")
)

// keyDelim separates koanf key paths. Rule set names may contain dots.
const keyDelim = "/"

// RuleSet is one named matcher loaded from a policy file.
type RuleSet struct {
	Name    string
	Source  string // policy file path
	Matcher *domain.Matcher
}

// LoadPolicyDirectory walks dir, loading every supported policy file, and
// returns the rule sets sorted by name. Any malformed file fails the load.
func LoadPolicyDirectory(dir string, logger logpkg.Logger) ([]RuleSet, error) {
	byName := make(map[string]RuleSet)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		sets, err := LoadPolicyFile(path, logger)
		if err != nil {
			return fmt.Errorf("error parsing policy file %s: %w", path, err)
		}
		for _, rs := range sets {
			if prev, ok := byName[rs.Name]; ok {
				return fmt.Errorf("%w: %q in %s and %s", ErrDuplicateRuleSet, rs.Name, prev.Source, rs.Source)
			}
			byName[rs.Name] = rs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]RuleSet, 0, len(byName))
	for _, rs := range byName {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	logger.Info(map[string]any{"dir": dir, "rulesets": len(out)}, "policy directory loaded")
	return out, nil
}

// LoadPolicyFile parses a single policy file. Files with unsupported
// extensions (including plain rule lists) yield no rule sets.
func LoadPolicyFile(path string, logger logpkg.Logger) ([]RuleSet, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return nil, nil
	}

	k := koanf.New(keyDelim)
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load policy file %s: %w", path, err)
	}

	names := k.MapKeys("rulesets")
	if len(names) == 0 {
		return nil, fmt.Errorf("policy file %s declares no 'rulesets'", path)
	}

	sets := make([]RuleSet, 0, len(names))
	for _, name := range names {
		if !config.ValidRuleSetName(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRuleSetName, name)
		}
		m, err := buildRuleSet(k, "rulesets"+keyDelim+name, filepath.Dir(path), logger)
		if err != nil {
			return nil, fmt.Errorf("rule set %q: %w", name, err)
		}
		logger.Debug(map[string]any{"file": path, "ruleset": name, "rules": m.Len()}, "policy_ruleset_loaded")
		sets = append(sets, RuleSet{Name: name, Source: path, Matcher: m})
	}
	return sets, nil
}

// buildRuleSet assembles encoded, rules and list entries under base, in that order.
func buildRuleSet(k *koanf.Koanf, base, dir string, logger logpkg.Logger) (*domain.Matcher, error) {
	m, err := domain.Decode(k.String(base + keyDelim + "encoded"))
	if err != nil {
		return nil, fmt.Errorf("encoded: %w", err)
	}

	for i, tok := range toStringValues(k.Get(base + keyDelim + "rules")) {
		r, err := domain.ParseRule(tok)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if err := m.AddRule(r); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	if list := k.String(base + keyDelim + "list"); list != "" {
		if !filepath.IsAbs(list) {
			list = filepath.Join(dir, list)
		}
		f, err := os.Open(list)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		defer f.Close()
		lm, err := parsers.ParseRuleList(f, list, logger)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		for _, r := range lm.Rules() {
			if err := m.AddRule(r); err != nil {
				return nil, fmt.Errorf("list: %w", err)
			}
		}
	}
	return m, nil
}

// toStringValues converts a raw koanf value (string or []any of strings) into a
// slice of non-empty strings, skipping empty or non-string elements.
func toStringValues(val any) []string {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
