package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-bytes/internal/match/domain"
)

func newTestCmd() *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "test [candidate...]",
		Short: "Evaluate hex candidates against a matcher (reads stdin when no arguments are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := src.load()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if args, err = readCandidates(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			for _, arg := range args {
				candidate, err := domain.ParseCandidate(arg)
				if err != nil {
					return err
				}
				d := m.Decide(candidate)
				verdict, rule := "reject", "-"
				if d.Accepted {
					verdict = "accept"
				}
				if d.Matched {
					rule = fmt.Sprintf("%d:%s", d.RuleIndex, d.Rule)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", hex.EncodeToString(candidate), verdict, rule); err != nil {
					return err
				}
			}
			return nil
		},
	}

	src.bind(cmd)
	return cmd
}

func readCandidates(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
