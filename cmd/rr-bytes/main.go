package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/bolt"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/parsers"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "rr-bytes",
		Short:        "Inspect, test and manage byte-pattern rule sets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.Configure("dev", logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug|info|warn|error")

	root.AddCommand(newEncodeCmd())
	root.AddCommand(newTestCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newStoreCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s buildDate=%s\n", version, commit, buildDate)
		},
	}
}

// sourceFlags selects where a command reads its matcher from.
type sourceFlags struct {
	rules   string
	file    string
	db      string
	ruleset string
}

func (s *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.rules, "rules", "", "Encoded rules, e.g. \"-ff/0f,+ff/f0\"")
	cmd.Flags().StringVar(&s.file, "file", "", "Path to a rule list file")
	cmd.Flags().StringVar(&s.db, "db", "", "Path to a rule set store")
	cmd.Flags().StringVar(&s.ruleset, "ruleset", "default", "Rule set name when reading from --db")
}

func (s *sourceFlags) load() (*domain.Matcher, error) {
	n := 0
	for _, v := range []string{s.rules, s.file, s.db} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return nil, errors.New("exactly one of --rules, --file or --db is required")
	}

	switch {
	case s.rules != "":
		return domain.Decode(s.rules)
	case s.file != "":
		f, err := os.Open(s.file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parsers.ParseRuleList(f, s.file, log.GetLogger())
	default:
		store, err := bolt.New(s.db)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		m, _, ok, err := store.Get(s.ruleset)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ruleset.ErrRuleSetNotFound, s.ruleset)
		}
		return m, nil
	}
}
