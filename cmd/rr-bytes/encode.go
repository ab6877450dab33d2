package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var src sourceFlags
	var format string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print a matcher in canonical text, binary (hex) or per-rule form",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := src.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "", "text":
				_, err = fmt.Fprintln(out, m.Encode())
			case "binary":
				var data []byte
				if data, err = m.MarshalBinary(); err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, hex.EncodeToString(data))
			case "rules":
				for i, r := range m.Rules() {
					mask := "-"
					if r.IsMasked() {
						mask = hex.EncodeToString(r.Mask)
					}
					if _, err = fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", i, r.Kind, r.Disposition, hex.EncodeToString(r.Value), mask); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return err
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|binary|rules")
	return cmd
}
