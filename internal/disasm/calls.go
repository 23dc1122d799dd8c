package disasm

import "fmt"

// Call kinds.
const (
	CallDirect   = "bl"
	CallIndirect = "blr"
)

// CallEdge is a call site.
type CallEdge struct {
	FromPC     uint64 `json:"from_pc"`
	Kind       string `json:"kind"`
	TargetPC   uint64 `json:"target_pc,omitempty"` // 0 when an indirect target is unknown
	TargetName string `json:"target_name,omitempty"`
	Reg        string `json:"reg,omitempty"` // blr only
}

// Resolved reports whether the call target address is known.
func (e CallEdge) Resolved() bool { return e.TargetPC != 0 }

// DefaultWindow is how many instructions a materialized address stays
// live in the register tracker.
const DefaultWindow = 8

type regDef struct {
	value uint64
	age   int
	live  bool
}

// RegTracker follows addresses materialized into X0-X30 by ADR, ADRP and
// ADD #imm. Definitions expire after w instructions.
type RegTracker struct {
	defs [31]regDef
	w    int
}

// NewRegTracker returns a tracker with window w.
func NewRegTracker(w int) *RegTracker {
	return &RegTracker{w: w}
}

// Tick ages every definition by one instruction.
func (rt *RegTracker) Tick() {
	for i := range rt.defs {
		d := &rt.defs[i]
		if !d.live {
			continue
		}
		if d.age++; d.age > rt.w {
			*d = regDef{}
		}
	}
}

// Define records that rd holds value.
func (rt *RegTracker) Define(rd int, value uint64) {
	if rd < 0 || rd > 30 {
		return
	}
	rt.defs[rd] = regDef{value: value, live: true}
}

// Lookup returns the live value of rd.
func (rt *RegTracker) Lookup(rd int) (uint64, bool) {
	if rd < 0 || rd > 30 {
		return 0, false
	}
	d := rt.defs[rd]
	return d.value, d.live
}

// Kill forgets rd.
func (rt *RegTracker) Kill(rd int) {
	if rd >= 0 && rd <= 30 {
		rt.defs[rd] = regDef{}
	}
}

// clobberCall forgets the caller-saved registers and the link register.
func (rt *RegTracker) clobberCall() {
	for r := 0; r <= 18; r++ {
		rt.Kill(r)
	}
	rt.Kill(30)
}

// step updates the tracker for one non-call instruction.
func (rt *RegTracker) step(raw uint32, pc uint64) {
	rt.Tick()
	rd := int(raw & 0x1F)
	switch {
	case raw&0x9F000000 == 0x10000000: // ADR
		rt.Define(rd, uint64(int64(pc)+int64(adrImm(raw))))
	case raw&0x9F000000 == 0x90000000: // ADRP
		rt.Define(rd, uint64(int64(pc&^0xFFF)+int64(adrImm(raw))<<12))
	case raw&0xFF800000 == 0x91000000: // ADD Xd, Xn, #imm{, LSL #12}
		imm := uint64((raw >> 10) & 0xFFF)
		if raw&(1<<22) != 0 {
			imm <<= 12
		}
		if base, ok := rt.Lookup(int((raw >> 5) & 0x1F)); ok {
			rt.Define(rd, base+imm)
		} else {
			rt.Kill(rd)
		}
	default:
		if d := dstReg(raw); d >= 0 {
			rt.Kill(d)
		}
	}
}

// adrImm decodes the signed 21-bit immhi:immlo field of ADR/ADRP.
func adrImm(raw uint32) int32 {
	immlo := (raw >> 29) & 0x3
	immhi := (raw >> 5) & 0x7FFFF
	return signExtend(immhi<<2|immlo, 21)
}

// dstReg returns the destination of common loads and data-processing
// instructions, or -1.
func dstReg(raw uint32) int {
	switch {
	case raw&0xFFC00000 == 0xF9400000, // LDR X, unsigned offset
		raw&0xFFC00000 == 0xB9400000, // LDR W, unsigned offset
		raw&0xFFE00C00 == 0xF8400000, // LDUR X
		raw&0xFFE00C00 == 0xB8400000, // LDUR W
		raw&0xFFE00C00 == 0xF8600800, // LDR X, register offset
		raw&0xFF000000 == 0xD1000000, // SUB X imm
		raw&0xFF800000 == 0xD2800000, // MOVZ X
		raw&0xFF800000 == 0xF2800000, // MOVK X
		raw&0xFF800000 == 0x92800000, // MOVN X
		raw&0xFF200000 == 0xAA000000, // ORR X (MOV)
		raw&0xFF800000 == 0xD3000000: // UBFM X
		return int(raw & 0x1F)
	}
	return -1
}

// CallEdges scans insts for BL and BLR sites. BL targets are resolved
// directly; BLR targets are resolved when the register holds an address
// materialized within the last w instructions. symbols names resolved
// targets and may be nil.
func CallEdges(insts []Inst, symbols SymbolLookup, w int) []CallEdge {
	if w <= 0 {
		w = DefaultWindow
	}
	rt := NewRegTracker(w)
	var edges []CallEdge
	for _, inst := range insts {
		var e CallEdge
		switch {
		case inst.Raw&blMask == blValue:
			e = CallEdge{FromPC: inst.Addr, Kind: CallDirect}
			e.TargetPC, _ = DirectTarget(inst.Raw, inst.Addr)
		case inst.Raw&blrMask == blrValue:
			rn := int((inst.Raw >> 5) & 0x1F)
			e = CallEdge{FromPC: inst.Addr, Kind: CallIndirect, Reg: fmt.Sprintf("X%d", rn)}
			e.TargetPC, _ = rt.Lookup(rn)
		default:
			rt.step(inst.Raw, inst.Addr)
			continue
		}
		if e.Resolved() && symbols != nil {
			e.TargetName, _ = symbols(e.TargetPC)
		}
		edges = append(edges, e)
		rt.Tick()
		rt.clobberCall()
	}
	return edges
}
