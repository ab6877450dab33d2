package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/domain"
)

// ParseRuleList parses a newline-delimited rule list into a Matcher.
//
// Behavior:
// - Each line holds one or more comma separated rule tokens
// - Supports comments starting with '#' (inline or whole-line)
// - Skips empty lines after trimming/stripping comments
// - Drops exact duplicate tokens (a later copy can never be the first match)
// - Any malformed token fails the whole parse, reporting source and line
func ParseRuleList(r io.Reader, source string, logger logpkg.Logger) (*domain.Matcher, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	m := domain.NewMatcher()
	logger.Debug(map[string]any{"source": source}, "parse_rule_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}

		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for _, tok := range strings.Split(line, ",") {
			rule, err := domain.ParseRule(tok)
			if err != nil {
				logger.Debug(map[string]any{"source": source, "line": lineNum, "token": tok, "error": err.Error()}, "parse_rule_list_error")
				return nil, fmt.Errorf("%s:%d: %w", source, lineNum, err)
			}
			key := rule.String()
			if _, ok := seen[key]; ok {
				logger.Debug(map[string]any{"line": lineNum, "rule": key}, "skip_duplicate")
				continue
			}
			if err := m.AddRule(rule); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", source, lineNum, err)
			}
			seen[key] = struct{}{}
			logger.Debug(map[string]any{"line": lineNum, "rule": key}, "emit_rule")
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_rule_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": m.Len()}, "parse_rule_list_done")
	return m, nil
}

// ParseRuleListString parses a rule list from string input.
func ParseRuleListString(src, source string, logger logpkg.Logger) (*domain.Matcher, error) {
	return ParseRuleList(strings.NewReader(src), source, logger)
}
