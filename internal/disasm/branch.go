package disasm

// BranchInfo describes a basic-block terminator.
type BranchInfo struct {
	Target   uint64 // absolute target; 0 for RET and BR
	Cond     bool   // has a fallthrough edge
	IsRet    bool
	Indirect bool // BR Xn: target unknown
}

// branchForm is a PC-relative branch encoding: raw&mask == value, with a
// signed word offset of bits width starting at shift.
type branchForm struct {
	mask, value uint32
	shift, bits uint
	cond        bool
}

var branchForms = []branchForm{
	{0xFC000000, 0x14000000, 0, 26, false}, // B
	{0xFF000010, 0x54000000, 5, 19, true},  // B.cond
	{0x7F000000, 0x34000000, 5, 19, true},  // CBZ
	{0x7F000000, 0x35000000, 5, 19, true},  // CBNZ
	{0x7F000000, 0x36000000, 5, 14, true},  // TBZ
	{0x7F000000, 0x37000000, 5, 14, true},  // TBNZ
}

const (
	retMask, retValue = 0xFFFFFC1F, 0xD65F0000 // RET Xn
	brMask, brValue   = 0xFFFFFC1F, 0xD61F0000 // BR Xn
	blMask, blValue   = 0xFC000000, 0x94000000 // BL imm26
	blrMask, blrValue = 0xFFFFFC1F, 0xD63F0000 // BLR Xn
)

// DecodeBranch decodes raw at pc as a block terminator, or returns nil.
// Calls (BL, BLR) return to the next instruction and are not terminators.
func DecodeBranch(raw uint32, pc uint64) *BranchInfo {
	if raw&retMask == retValue {
		return &BranchInfo{IsRet: true}
	}
	if raw&brMask == brValue {
		return &BranchInfo{Indirect: true}
	}
	for _, f := range branchForms {
		if raw&f.mask != f.value {
			continue
		}
		imm := (raw >> f.shift) & (1<<f.bits - 1)
		return &BranchInfo{Target: relTarget(pc, imm, f.bits), Cond: f.cond}
	}
	return nil
}

// DirectTarget returns the target of a BL or a PC-relative branch.
func DirectTarget(raw uint32, pc uint64) (uint64, bool) {
	if raw&blMask == blValue {
		return relTarget(pc, raw&0x03FFFFFF, 26), true
	}
	if bi := DecodeBranch(raw, pc); bi != nil && !bi.IsRet && !bi.Indirect {
		return bi.Target, true
	}
	return 0, false
}

func relTarget(pc uint64, imm uint32, bits uint) uint64 {
	return uint64(int64(pc) + int64(signExtend(imm, int(bits)))*4)
}

// signExtend sign-extends val from the given bit width.
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask)
	}
	return int32(val & mask)
}
