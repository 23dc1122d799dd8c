package analysis

import (
	"debug/elf"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/zboralski/lattice"
	"go.uber.org/atomic"

	"binmap/internal/callgraph"
	"binmap/internal/disasm"
	"binmap/internal/elfx"
	"binmap/internal/logging"
	"binmap/internal/palette"
	"binmap/internal/ranges"
)

// ELFOptions controls how an ELF file is classified.
type ELFOptions struct {
	// Tags colors the named symbols explicitly.
	Tags map[string]palette.ColorID
	// ColorFunctions tags every function symbol with its derived color.
	ColorFunctions bool
	// MinString is the shortest printable run reported as a string; 0 = 4.
	MinString int
	// MaxFuncBytes caps how much of one function is disassembled; 0 = 1 MiB.
	MaxFuncBytes uint64
	Logger       zerolog.Logger
}

func (o ELFOptions) minString() int {
	if o.MinString > 0 {
		return o.MinString
	}
	return 4
}

func (o ELFOptions) maxFuncBytes() uint64 {
	if o.MaxFuncBytes > 0 {
		return o.MaxFuncBytes
	}
	return 1 << 20
}

// Function is a function symbol in offset space.
type Function struct {
	Name   string
	Offset uint64
	Size   uint64
}

// End returns Offset+Size.
func (f Function) End() uint64 { return f.Offset + f.Size }

// ELF is a provider over an ELF file. Offsets are relative to the lowest
// PT_LOAD address, and the offset space runs to the end of the highest
// segment.
type ELF struct {
	notifier

	path string
	opts ELFOptions
	log  zerolog.Logger
	img  atomic.Pointer[elfImage]
}

// elfImage is one immutable load of the file.
type elfImage struct {
	base   uint64
	length uint64
	arm64  bool
	ranges []ranges.AddressRange
	layout *Layout
	funcs  []Function // sorted by Offset
}

// OpenELF loads path.
func OpenELF(path string, opts ELFOptions) (*ELF, error) {
	e := &ELF{
		path: path,
		opts: opts,
		log:  logging.Component(opts.Logger, "elf").With().Str("path", path).Logger(),
	}
	img, err := e.load()
	if err != nil {
		return nil, err
	}
	e.img.Store(img)
	return e, nil
}

// Reload re-reads the file and notifies subscribers. On error the previous
// contents stay in place.
func (e *ELF) Reload() error {
	img, err := e.load()
	if err != nil {
		return err
	}
	e.img.Store(img)
	e.notify()
	return nil
}

// Path returns the file path.
func (e *ELF) Path() string { return e.path }

// AddressRanges implements Provider.
func (e *ELF) AddressRanges() []ranges.AddressRange {
	return append([]ranges.AddressRange(nil), e.img.Load().ranges...)
}

// Length implements Provider.
func (e *ELF) Length() uint64 { return e.img.Load().length }

// ClassifyRun implements Provider.
func (e *ELF) ClassifyRun(off uint64) (Facts, uint64, error) {
	return e.img.Load().layout.ClassifyRun(off)
}

// Base returns the VA of offset 0.
func (e *ELF) Base() uint64 { return e.img.Load().base }

// VA converts an offset to a virtual address.
func (e *ELF) VA(off uint64) uint64 { return e.img.Load().base + off }

// Offset converts a virtual address to an offset.
func (e *ELF) Offset(va uint64) (uint64, bool) {
	img := e.img.Load()
	if va < img.base || va-img.base >= img.length {
		return 0, false
	}
	return va - img.base, true
}

// Functions returns the function symbols sorted by offset.
func (e *ELF) Functions() []Function {
	return append([]Function(nil), e.img.Load().funcs...)
}

// FunctionAt returns the function containing off.
func (e *ELF) FunctionAt(off uint64) (Function, bool) {
	funcs := e.img.Load().funcs
	i := sort.Search(len(funcs), func(i int) bool { return funcs[i].Offset > off })
	for i--; i >= 0; i-- {
		if off < funcs[i].End() {
			return funcs[i], true
		}
		if off-funcs[i].Offset > e.opts.maxFuncBytes() {
			break
		}
	}
	return Function{}, false
}

// Disassemble decodes fn from the file.
func (e *ELF) Disassemble(fn Function) ([]disasm.Inst, error) {
	img := e.img.Load()
	if !img.arm64 {
		return nil, elfx.ErrNotARM64
	}
	ef, err := elfx.Open(e.path)
	if err != nil {
		return nil, err
	}
	defer ef.Close()
	return e.decode(ef, img.base, fn)
}

// FunctionCFG builds the lattice CFG of the function containing off, with
// call sites named from the symbol table.
func (e *ELF) FunctionCFG(off uint64) (*lattice.FuncCFG, error) {
	fn, ok := e.FunctionAt(off)
	if !ok {
		return nil, fmt.Errorf("analysis: no function at offset 0x%x", off)
	}
	insts, err := e.Disassemble(fn)
	if err != nil {
		return nil, err
	}
	lcfg, _ := callgraph.BuildFuncCFG(fn.Name, insts, disasm.CallEdges(insts, e.Lookup(), 0))
	return lcfg, nil
}

// CallGraph disassembles every function and links named call targets.
func (e *ELF) CallGraph() (*lattice.Graph, error) {
	img := e.img.Load()
	if !img.arm64 {
		return nil, elfx.ErrNotARM64
	}
	ef, err := elfx.Open(e.path)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	lookup := e.Lookup()
	funcs := make([]callgraph.FuncInfo, 0, len(img.funcs))
	for _, fn := range img.funcs {
		insts, err := e.decode(ef, img.base, fn)
		if err != nil {
			e.log.Debug().Err(err).Str("func", fn.Name).Msg("skipping function")
			continue
		}
		funcs = append(funcs, callgraph.FuncInfo{Name: fn.Name, CallEdges: disasm.CallEdges(insts, lookup, 0)})
	}
	return callgraph.BuildCallGraph(funcs), nil
}

// Lookup names function entry VAs.
func (e *ELF) Lookup() disasm.SymbolLookup {
	img := e.img.Load()
	names := make(map[uint64]string, len(img.funcs))
	for _, fn := range img.funcs {
		names[img.base+fn.Offset] = fn.Name
	}
	return disasm.MapLookup(names)
}

func (e *ELF) decode(ef *elfx.File, base uint64, fn Function) ([]disasm.Inst, error) {
	size := min(fn.Size, e.opts.maxFuncBytes())
	data, err := ef.ReadBytesAtVA(base+fn.Offset, int(size))
	if err != nil {
		return nil, fmt.Errorf("analysis: read %s: %w", fn.Name, err)
	}
	return disasm.Disassemble(data, disasm.Options{BaseAddr: base + fn.Offset}), nil
}

func (e *ELF) load() (*elfImage, error) {
	ef, err := elfx.Open(e.path)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	base, length, err := ef.Span()
	if err != nil {
		return nil, fmt.Errorf("analysis: %s: %w", e.path, err)
	}
	img := &elfImage{base: base, length: length, arm64: ef.IsARM64()}
	var marks []Mark
	mark := func(va, size uint64, kind Kind, sym *Symbol) {
		if va < base || size == 0 {
			return
		}
		marks = append(marks, Mark{Start: va - base, Length: size, Kind: kind, Symbol: sym})
	}

	for _, s := range ef.LoadSegments() {
		img.ranges = append(img.ranges, ranges.AddressRange{Start: s.Vaddr - base, Length: s.Memsz})
		mark(s.Vaddr, s.Memsz, KindMapped, nil)
	}

	syms, err := ef.Symbols()
	if err != nil {
		e.log.Warn().Err(err).Msg("symbols unreadable, classifying without them")
	}
	for _, s := range syms {
		if s.Value < base || s.Size == 0 {
			continue
		}
		switch s.Type {
		case elf.STT_FUNC:
			img.funcs = append(img.funcs, Function{Name: s.Name, Offset: s.Value - base, Size: s.Size})
		case elf.STT_OBJECT:
			mark(s.Value, s.Size, KindDataVar, nil)
		}
	}
	sort.Slice(img.funcs, func(i, j int) bool { return img.funcs[i].Offset < img.funcs[j].Offset })

	var decoded, failed int
	for _, sec := range ef.Sections() {
		switch {
		case sec.Addr < base:
		case sec.Exec() && img.arm64:
			for _, gap := range uncovered(sec.Addr-base, sec.Size, img.funcs) {
				marks = append(marks, Mark{Start: gap.Start, Length: gap.Length, Kind: KindCode})
			}
		case sec.Exec():
			mark(sec.Addr, sec.Size, KindCode, nil)
		case sec.HasBits():
			data, err := ef.SectionData(sec.Name)
			if err != nil {
				e.log.Debug().Err(err).Str("section", sec.Name).Msg("section unreadable")
				continue
			}
			for _, r := range findStrings(data, e.opts.minString()) {
				mark(sec.Addr+r.Start, r.Length, KindString, nil)
			}
		}
	}

	// Function bodies: code where the CFG covers decodable instructions.
	if img.arm64 {
		for _, fn := range img.funcs {
			insts, err := e.decode(ef, base, fn)
			if err != nil {
				failed++
				continue
			}
			lcfg, _ := callgraph.BuildFuncCFG(fn.Name, insts, nil)
			for _, sp := range callgraph.BlockSpans(lcfg, insts) {
				mark(sp.Start, sp.End-sp.Start, KindCode, nil)
			}
			decoded++
		}
	}

	if e.opts.ColorFunctions {
		for _, fn := range img.funcs {
			marks = append(marks, Mark{Start: fn.Offset, Length: fn.Size,
				Symbol: &Symbol{Name: fn.Name, Address: fn.Offset, Size: fn.Size}})
		}
	}
	// Tagged symbols go last so they win over derived colors.
	for _, s := range syms {
		c, ok := e.opts.Tags[s.Name]
		if !ok || s.Value < base {
			continue
		}
		mark(s.Value, s.Size, 0, &Symbol{Name: s.Name, Address: s.Value - base, Size: s.Size, Color: c, HasColor: true})
	}

	img.layout = Compose(length, marks)
	e.log.Debug().
		Uint64("base", base).
		Uint64("length", length).
		Int("segments", len(img.ranges)).
		Int("functions", len(img.funcs)).
		Int("decoded", decoded).
		Int("failed", failed).
		Msg("loaded")
	return img, nil
}

// uncovered returns the parts of [start, start+size) outside every function.
func uncovered(start, size uint64, funcs []Function) []ranges.AddressRange {
	var out []ranges.AddressRange
	pos, end := start, start+size
	for _, fn := range funcs {
		if fn.End() <= pos || fn.Offset >= end {
			continue
		}
		if fn.Offset > pos {
			out = append(out, ranges.AddressRange{Start: pos, Length: fn.Offset - pos})
		}
		pos = max(pos, fn.End())
	}
	if pos < end {
		out = append(out, ranges.AddressRange{Start: pos, Length: end - pos})
	}
	return out
}

// findStrings returns the NUL-terminated printable ASCII runs of at least
// minLen bytes in data. Each range includes its terminator.
func findStrings(data []byte, minLen int) []ranges.AddressRange {
	var out []ranges.AddressRange
	start := -1
	for i, b := range data {
		switch {
		case b >= 0x20 && b < 0x7f || b == '\t' || b == '\n' || b == '\r':
			if start < 0 {
				start = i
			}
		case b == 0 && start >= 0 && i-start >= minLen:
			out = append(out, ranges.AddressRange{Start: uint64(start), Length: uint64(i - start + 1)})
			start = -1
		default:
			start = -1
		}
	}
	return out
}
