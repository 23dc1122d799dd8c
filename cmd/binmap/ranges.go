package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"binmap/internal/palette"
	"binmap/internal/raster"
)

func newRangesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "List the mapped ranges and how their bytes classify",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, o, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.engine.RefreshNow(cmd.Context()); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			set := s.engine.Ranges()
			fmt.Fprintf(w, "%d ranges, %s mapped of %s\n", set.Len(),
				humanize.IBytes(set.Total()), humanize.IBytes(s.engine.Length()))
			for _, r := range set.Ranges() {
				fmt.Fprintf(w, "  0x%08x-0x%08x  %10s\n", s.lib.VA(r.Start), s.lib.VA(r.End()), humanize.IBytes(r.Length))
			}

			fmt.Fprintf(w, "%d functions\n", len(s.lib.Functions()))

			names, totals := classTotals(s.engine.Runs())
			fmt.Fprintln(w, "classes:")
			for _, name := range names {
				fmt.Fprintf(w, "  %-9s %10s\n", name, humanize.IBytes(totals[name]))
			}
			return nil
		},
	}
}

// classTotals sums run lengths per class. Symbol colors are folded into
// one "symbol" row. names follows class order.
func classTotals(rl *raster.RunList) ([]string, map[string]uint64) {
	totals := make(map[string]uint64)
	if rl == nil {
		return nil, totals
	}
	for _, r := range rl.Runs {
		name := palette.ClassName(r.Color)
		if strings.HasPrefix(name, "symbol") {
			name = "symbol"
		}
		totals[name] += r.Length
	}
	var names []string
	for c := range palette.NumClasses {
		if name := palette.ClassName(palette.Class(c)); totals[name] > 0 {
			names = append(names, name)
		}
	}
	if totals["symbol"] > 0 {
		names = append(names, "symbol")
	}
	return names, totals
}
