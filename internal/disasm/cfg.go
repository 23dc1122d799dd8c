package disasm

import "sort"

// BasicBlock is a run of instructions with one entry.
type BasicBlock struct {
	ID      int
	Start   int // index into FuncCFG.Insts, inclusive
	End     int // exclusive
	Succs   []Succ
	IsEntry bool
	IsTerm  bool // RET, BR, or a branch leaving the function
}

// Succ is a control-flow edge.
type Succ struct {
	BlockID int
	Cond    string // "", "T" taken, "F" fallthrough
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BuildCFG partitions a function's instruction stream into basic blocks.
// Leaders are the entry, every in-function branch target, and every
// instruction after a terminator; edges come from each block's last
// instruction.
func BuildCFG(name string, insts []Inst) FuncCFG {
	cfg := FuncCFG{Name: name, Insts: insts}
	if len(insts) == 0 {
		return cfg
	}

	lo, hi := insts[0].Addr, insts[len(insts)-1].Addr+4
	index := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		index[inst.Addr] = i
	}
	local := func(bi *BranchInfo) (int, bool) {
		if bi.IsRet || bi.Indirect || bi.Target < lo || bi.Target >= hi {
			return 0, false
		}
		i, ok := index[bi.Target]
		return i, ok
	}

	isLeader := map[int]bool{0: true}
	for i, inst := range insts {
		bi := DecodeBranch(inst.Raw, inst.Addr)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			isLeader[i+1] = true
		}
		if t, ok := local(bi); ok {
			isLeader[t] = true
		}
	}
	leaders := make([]int, 0, len(isLeader))
	for i := range isLeader {
		leaders = append(leaders, i)
	}
	sort.Ints(leaders)

	blockAt := make(map[int]int, len(leaders))
	cfg.Blocks = make([]BasicBlock, len(leaders))
	for id, start := range leaders {
		end := len(insts)
		if id+1 < len(leaders) {
			end = leaders[id+1]
		}
		cfg.Blocks[id] = BasicBlock{ID: id, Start: start, End: end, IsEntry: start == 0}
		blockAt[start] = id
	}

	for id := range cfg.Blocks {
		blk := &cfg.Blocks[id]
		last := insts[blk.End-1]
		next, hasNext := blockAt[blk.End]
		bi := DecodeBranch(last.Raw, last.Addr)
		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		case bi.IsRet || bi.Indirect:
			blk.IsTerm = true
		case bi.Cond:
			if t, ok := local(bi); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: blockAt[t], Cond: "T"})
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		default:
			if t, ok := local(bi); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: blockAt[t]})
			} else {
				blk.IsTerm = true
			}
		}
	}
	return cfg
}
