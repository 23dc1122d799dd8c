package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/zboralski/lattice/render"

	"binmap/internal/elfx"
	"binmap/internal/output"
)

func newRenderCmd(o *options) *cobra.Command {
	var out, runs, graph, addr string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Classify the library and write the feature map",
		Example: `  binmap render --lib libapp.so --out map.png
  binmap render --lib libapp.so --out map.png --runs runs.json --addr 0x1f000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && runs == "" && graph == "" {
				return errors.New("nothing to write: pass --out, --runs or --callgraph")
			}
			s, err := openSession(cmd, o, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.engine.RefreshNow(cmd.Context()); err != nil {
				return err
			}

			img := s.engine.Display()
			if addr != "" {
				va, err := parseAddr(addr)
				if err != nil {
					return err
				}
				off, ok := s.lib.Offset(va)
				if !ok {
					return fmt.Errorf("0x%x is outside %s", va, o.lib)
				}
				img = s.engine.SetCurrentAddress(off)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				if err := output.WritePNG(out, img, s.engine.Palette()); err != nil {
					return err
				}
				fmt.Fprintf(w, "map: %s (%dx%d, %s mapped)\n", out, img.Width, img.Height,
					humanize.IBytes(s.engine.Ranges().Total()))
			}
			if runs != "" {
				rl := s.engine.Runs()
				if err := output.WriteRunsJSON(runs, rl, s.engine.Palette()); err != nil {
					return err
				}
				fmt.Fprintf(w, "runs: %s (%d runs)\n", runs, len(rl.Runs))
			}
			if graph != "" {
				g, err := s.lib.CallGraph()
				if errors.Is(err, elfx.ErrNotARM64) {
					s.log.Warn().Msg("call graph needs an arm64 library, skipped")
					return nil
				}
				if err != nil {
					return err
				}
				if err := output.WriteDOT(graph, render.DOT(g, o.lib)); err != nil {
					return err
				}
				fmt.Fprintf(w, "callgraph: %s (%d functions, %d edges)\n", graph, len(g.Nodes), len(g.Edges))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "", "PNG output path")
	f.StringVar(&runs, "runs", "", "JSON run list output path")
	f.StringVar(&graph, "callgraph", "", "DOT call graph output path")
	f.StringVar(&addr, "addr", "", "highlight this virtual address (hex)")
	return cmd
}
