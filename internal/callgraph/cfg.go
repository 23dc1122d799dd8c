package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"binmap/internal/disasm"
)

// BuildCFG converts every function into a lattice.CFGGraph.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		lcfg, _ := BuildFuncCFG(f.Name, f.Insts, f.CallEdges)
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// BuildFuncCFG builds one function's lattice.FuncCFG and returns it with
// its block count.
func BuildFuncCFG(name string, insts []disasm.Inst, edges []disasm.CallEdge) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(name, insts)
	return convertFuncCFG(&dcfg, edges), len(dcfg.Blocks)
}

// calleeName labels a call site in a CFG block.
func calleeName(e disasm.CallEdge) string {
	switch {
	case e.TargetName != "":
		return e.TargetName
	case e.Resolved():
		return fmt.Sprintf("0x%x", e.TargetPC)
	case e.Reg != "":
		return "*" + e.Reg
	}
	return "?"
}

func convertFuncCFG(dcfg *disasm.FuncCFG, edges []disasm.CallEdge) *lattice.FuncCFG {
	byPC := make(map[uint64]disasm.CallEdge, len(edges))
	for _, e := range edges {
		byPC[e.FromPC] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, s := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: s.BlockID, Cond: s.Cond})
		}
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if e, ok := byPC[dcfg.Insts[idx].Addr]; ok {
				lb.Calls = append(lb.Calls, lattice.CallSite{Offset: idx, Callee: calleeName(e)})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// Span is a half-open address range [Start, End).
type Span struct {
	Start, End uint64
}

// BlockSpans returns the address ranges covered by decodable instructions
// in lcfg's blocks, merged where adjacent. insts must be the stream the
// CFG was built from. Undecodable words inside a block (literal pools)
// split the block's span.
func BlockSpans(lcfg *lattice.FuncCFG, insts []disasm.Inst) []Span {
	var out []Span
	add := func(start, end uint64) {
		if n := len(out); n > 0 && out[n-1].End == start {
			out[n-1].End = end
			return
		}
		out = append(out, Span{start, end})
	}
	for _, b := range lcfg.Blocks {
		for i := max(b.Start, 0); i < b.End && i < len(insts); i++ {
			if insts[i].Valid {
				add(insts[i].Addr, insts[i].Addr+4)
			}
		}
	}
	return out
}
