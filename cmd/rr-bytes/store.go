package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/policy"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset/bolt"
)

func newStoreCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the persistent rule set store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the rule set store")
	_ = cmd.MarkPersistentFlagRequired("db")

	withStore := func(fn func(cmd *cobra.Command, args []string, s ruleset.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := bolt.New(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()
			return fn(cmd, args, s)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored rule sets",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s ruleset.Store) error {
			names, err := s.Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				_, meta, ok, err := s.Get(name)
				if err != nil {
					return fmt.Errorf("rule set %q: %w", name, err)
				}
				if !ok {
					continue
				}
				updated := time.Unix(meta.UpdatedUnix, 0).UTC().Format(time.RFC3339)
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\tv%d\t%d rules\t%s\n", name, meta.Version, meta.Rules, updated); err != nil {
					return err
				}
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print a stored rule set in canonical text form",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s ruleset.Store) error {
			m, _, ok, err := s.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %q", ruleset.ErrRuleSetNotFound, args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), m.Encode())
			return err
		}),
	})

	var rules string
	put := &cobra.Command{
		Use:   "put NAME",
		Short: "Store encoded rules under NAME",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s ruleset.Store) error {
			m, err := domain.Decode(rules)
			if err != nil {
				return err
			}
			v, err := s.Put(args[0], m, time.Now().Unix())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tv%d\n", args[0], v)
			return err
		}),
	}
	put.Flags().StringVar(&rules, "rules", "", "Encoded rules")
	cmd.AddCommand(put)

	var policyDir string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Load every rule set from a policy directory into the store",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s ruleset.Store) error {
			if policyDir == "" {
				return errors.New("policy directory is required")
			}
			sets, err := policy.LoadPolicyDirectory(policyDir, log.GetLogger())
			if err != nil {
				return err
			}
			now := time.Now().Unix()
			for _, rs := range sets {
				if _, err := s.Put(rs.Name, rs.Matcher, now); err != nil {
					return fmt.Errorf("rule set %q: %w", rs.Name, err)
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d rule sets\n", len(sets))
			return err
		}),
	}
	imp.Flags().StringVarP(&policyDir, "policy-dir", "p", "", "Path to policy directory")
	cmd.AddCommand(imp)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a stored rule set",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s ruleset.Store) error {
			return s.Delete(args[0])
		}),
	})

	return cmd
}
