package callgraph

import (
	"strings"
	"testing"

	"github.com/zboralski/lattice/render"

	"binmap/internal/disasm"
)

// branchy is a small function with a conditional, three calls, and a
// literal word between the returns:
//
//	B0 0x1000 MOV X0, #0; BL 0x1100; CBZ X0 → B2
//	B1 0x100C MOV X1, #1; BL 0x1210; B → B3
//	B2 0x1018 BL 0x1318; RET
//	B3 0x1020 .word; RET
func branchy() []disasm.Inst {
	return []disasm.Inst{
		{Addr: 0x1000, Raw: 0xD2800000, Valid: true},
		{Addr: 0x1004, Raw: 0x9400003F, Valid: true},
		{Addr: 0x1008, Raw: 0xB4000080, Valid: true},
		{Addr: 0x100C, Raw: 0xD2800021, Valid: true},
		{Addr: 0x1010, Raw: 0x94000080, Valid: true},
		{Addr: 0x1014, Raw: 0x14000003, Valid: true},
		{Addr: 0x1018, Raw: 0x940000C0, Valid: true},
		{Addr: 0x101C, Raw: 0xD65F03C0, Valid: true},
		{Addr: 0x1020, Raw: 0x02000000, Valid: false},
		{Addr: 0x1024, Raw: 0xD65F03C0, Valid: true},
	}
}

func TestBuildCFG_DOTOutput(t *testing.T) {
	insts := branchy()
	names := disasm.MapLookup(map[uint64]string{0x1100: "Foo.bar", 0x1210: "Baz.qux", 0x1318: "Quux.run"})
	edges := disasm.CallEdges(insts, names, 0)
	if len(edges) != 3 {
		t.Fatalf("got %d call edges, want 3", len(edges))
	}

	cfg := BuildCFG([]FuncInfo{{Name: "myMethod", Insts: insts, CallEdges: edges}})
	if len(cfg.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(cfg.Funcs))
	}
	f := cfg.Funcs[0]
	if f.Name != "myMethod" {
		t.Errorf("func name = %q", f.Name)
	}
	if len(f.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(f.Blocks))
	}

	b0 := f.Blocks[0]
	if len(b0.Calls) != 1 || b0.Calls[0].Callee != "Foo.bar" {
		t.Errorf("B0 calls = %+v", b0.Calls)
	}
	if len(b0.Succs) != 2 {
		t.Errorf("B0 succs = %+v", b0.Succs)
	}
	if b1 := f.Blocks[1]; len(b1.Calls) != 1 || b1.Calls[0].Callee != "Baz.qux" {
		t.Errorf("B1 calls = %+v", b1.Calls)
	}
	b2 := f.Blocks[2]
	if len(b2.Calls) != 1 || b2.Calls[0].Callee != "Quux.run" {
		t.Errorf("B2 calls = %+v", b2.Calls)
	}
	if !b2.Term || !f.Blocks[3].Term {
		t.Error("B2 and B3 should be terminal")
	}

	dot := render.DOTCFG(cfg, "binmap CFG example")
	if !strings.Contains(dot, "digraph") {
		t.Errorf("unexpected DOT output: %q", dot)
	}
}

func TestCalleeNames(t *testing.T) {
	insts := []disasm.Inst{
		{Addr: 0x2000, Raw: 0x94000100, Valid: true}, // BL 0x2400, no symbol
		{Addr: 0x2004, Raw: 0xD63F0200, Valid: true}, // BLR X16, unknown
		{Addr: 0x2008, Raw: 0xD65F03C0, Valid: true},
	}
	lcfg, n := BuildFuncCFG("f", insts, disasm.CallEdges(insts, nil, 0))
	if n != 1 {
		t.Fatalf("blocks = %d, want 1", n)
	}
	calls := lcfg.Blocks[0].Calls
	if len(calls) != 2 || calls[0].Callee != "0x2400" || calls[1].Callee != "*X16" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestBlockSpans(t *testing.T) {
	insts := branchy()
	lcfg, _ := BuildFuncCFG("f", insts, nil)

	spans := BlockSpans(lcfg, insts)
	want := []Span{{0x1000, 0x1020}, {0x1024, 0x1028}}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v, want %+v", spans, want)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %+v, want %+v", i, spans[i], want[i])
		}
	}

	if got := BlockSpans(lcfg, nil); len(got) != 0 {
		t.Errorf("spans without insts = %+v", got)
	}
}

func TestBuildCallGraph_DOTOutput(t *testing.T) {
	funcs := []FuncInfo{
		{
			Name: "main",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x1004, Kind: disasm.CallDirect, TargetPC: 0x2000, TargetName: "init"},
				{FromPC: 0x1010, Kind: disasm.CallDirect, TargetPC: 0x3000, TargetName: "run"},
				{FromPC: 0x1014, Kind: disasm.CallDirect, TargetPC: 0x3000, TargetName: "run"},
			},
		},
		{
			Name: "init",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x2008, Kind: disasm.CallDirect, TargetPC: 0x4000, TargetName: "log"},
			},
		},
		{
			Name: "run",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x3004, Kind: disasm.CallDirect, TargetPC: 0x4000, TargetName: "log"},
				{FromPC: 0x3010, Kind: disasm.CallIndirect, Reg: "X16"},
			},
		},
		{Name: "log"},
	}

	cg := BuildCallGraph(funcs)
	if len(cg.Nodes) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(cg.Nodes))
	}
	if len(cg.Edges) != 4 {
		t.Errorf("expected 4 deduplicated edges, got %d: %+v", len(cg.Edges), cg.Edges)
	}

	dot := render.DOT(cg, "binmap call graph example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}
