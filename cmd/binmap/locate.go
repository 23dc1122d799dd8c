package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"binmap/internal/mapper"
	"binmap/internal/output"
	"binmap/internal/palette"
)

func newLocateCmd(o *options) *cobra.Command {
	var x, y int
	var dot, asm string
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Resolve a canvas pixel to the address it covers",
		Example: `  binmap locate --lib libapp.so --x 10 --y 400
  binmap locate --lib libapp.so --y 400 --dot fn.dot --asm fn.s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, o, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.engine.RefreshNow(cmd.Context()); err != nil {
				return err
			}

			req, ok := s.engine.Resolve(mapper.Point{X: x, Y: y})
			if !ok {
				return errors.New("nothing is mapped")
			}
			class := "unknown"
			if rl := s.engine.Runs(); rl != nil {
				if c, ok := rl.ColorAt(req.Offset); ok {
					class = palette.ClassName(c)
				}
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "offset 0x%x\n", req.Offset)
			fmt.Fprintf(w, "va     0x%x\n", s.lib.VA(req.Offset))
			fmt.Fprintf(w, "exact  %t\n", req.Exact)
			fmt.Fprintf(w, "class  %s\n", class)

			fn, ok := s.lib.FunctionAt(req.Offset)
			if !ok {
				if dot != "" || asm != "" {
					s.log.Warn().Uint64("offset", req.Offset).Msg("no function here, skipping --dot and --asm")
				}
				return nil
			}
			fmt.Fprintf(w, "func   %s+0x%x\n", fn.Name, req.Offset-fn.Offset)

			if dot != "" {
				lcfg, err := s.lib.FunctionCFG(req.Offset)
				if err != nil {
					return err
				}
				g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}
				if err := output.WriteDOT(dot, render.DOTCFG(g, fn.Name)); err != nil {
					return err
				}
			}
			if asm != "" {
				insts, err := s.lib.Disassemble(fn)
				if err != nil {
					return err
				}
				if err := output.WriteASM(asm, insts, s.lib.Lookup()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&x, "x", 0, "pixel column")
	f.IntVar(&y, "y", 0, "pixel row")
	f.StringVar(&dot, "dot", "", "write the containing function's CFG as DOT")
	f.StringVar(&asm, "asm", "", "write the containing function's disassembly")
	return cmd
}
