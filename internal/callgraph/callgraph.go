// Package callgraph converts disassembled functions into lattice graphs:
// per-function CFGs, the code spans their blocks cover, and a call graph.
package callgraph

import (
	"github.com/zboralski/lattice"

	"binmap/internal/disasm"
)

// FuncInfo is one disassembled function.
type FuncInfo struct {
	Name      string
	Insts     []disasm.Inst
	CallEdges []disasm.CallEdge
}

// BuildCallGraph makes one node per function and one edge per named call.
// Calls whose target has no symbol are skipped.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			if e.TargetName == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{Caller: f.Name, Callee: e.TargetName})
		}
	}
	g.Dedup()
	return g
}
