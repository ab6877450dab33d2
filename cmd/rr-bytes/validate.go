package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/repos/policy"
)

func newValidateCmd() *cobra.Command {
	var policyDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if policyDir == "" {
				return errors.New("policy directory is required")
			}
			sets, err := policy.LoadPolicyDirectory(policyDir, log.GetLogger())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rs := range sets {
				if _, err := fmt.Fprintf(out, "%s\t%d\t%s\n", rs.Name, rs.Matcher.Len(), rs.Source); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "policy ok: %d rule sets\n", len(sets))
			return err
		},
	}

	cmd.Flags().StringVarP(&policyDir, "policy-dir", "p", "", "Path to policy directory")
	return cmd
}
