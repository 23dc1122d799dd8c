// Package elfx provides the ELF loading helpers behind the ELF analysis
// provider: load segments, sections, symbols and VA-addressed reads.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrNotELF    = errors.New("elfx: not an ELF file")
	ErrNotARM64  = errors.New("elfx: not ARM64 (EM_AARCH64)")
	ErrNoLoad    = errors.New("elfx: no PT_LOAD segments")
	ErrNoSymbol  = errors.New("elfx: symbol not found")
	ErrNoSegment = errors.New("elfx: no PT_LOAD segment covers address")
)

// File wraps a debug/elf.File.
type File struct {
	ELF  *elf.File
	raw  *os.File
	size int64
}

// Open opens any ELF file, 32 or 64 bit, of any machine.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	return &File{ELF: ef, raw: f, size: info.Size()}, nil
}

// Close releases the file.
func (f *File) Close() error {
	f.ELF.Close()
	return f.raw.Close()
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Machine returns e_machine.
func (f *File) Machine() elf.Machine { return f.ELF.Machine }

// IsARM64 reports a 64-bit AArch64 file, the only machine disasm decodes.
func (f *File) IsARM64() bool {
	return f.ELF.Class == elf.ELFCLASS64 && f.ELF.Machine == elf.EM_AARCH64
}

// SegmentInfo describes a PT_LOAD segment.
type SegmentInfo struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Offset uint64
	Flags  elf.ProgFlag
}

// LoadSegments returns the PT_LOAD segments with a non-zero memory size,
// sorted by Vaddr.
func (f *File) LoadSegments() []SegmentInfo {
	var segs []SegmentInfo
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		segs = append(segs, SegmentInfo{
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Filesz: p.Filesz,
			Offset: p.Off,
			Flags:  p.Flags,
		})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Vaddr < segs[j].Vaddr })
	return segs
}

// Span returns the lowest load address and the size of the image up to the
// end of the highest segment.
func (f *File) Span() (base, length uint64, err error) {
	segs := f.LoadSegments()
	if len(segs) == 0 {
		return 0, 0, ErrNoLoad
	}
	base = segs[0].Vaddr
	var end uint64
	for _, s := range segs {
		if e := s.Vaddr + s.Memsz; e > end {
			end = e
		}
	}
	return base, end - base, nil
}

// Section is an allocated section.
type Section struct {
	Name  string
	Addr  uint64
	Size  uint64
	Type  elf.SectionType
	Flags elf.SectionFlag
}

// Exec reports SHF_EXECINSTR.
func (s Section) Exec() bool { return s.Flags&elf.SHF_EXECINSTR != 0 }

// HasBits reports whether the section occupies file bytes.
func (s Section) HasBits() bool { return s.Type != elf.SHT_NOBITS }

// Sections returns the SHF_ALLOC sections with a non-zero size, sorted by
// address.
func (f *File) Sections() []Section {
	var out []Section
	for _, s := range f.ELF.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Size == 0 {
			continue
		}
		out = append(out, Section{Name: s.Name, Addr: s.Addr, Size: s.Size, Type: s.Type, Flags: s.Flags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// SectionData reads an allocated section's file bytes.
func (f *File) SectionData(name string) ([]byte, error) {
	s := f.ELF.Section(name)
	if s == nil {
		return nil, fmt.Errorf("elfx: no section %s", name)
	}
	data, err := s.Data()
	if err != nil {
		return nil, fmt.Errorf("elfx: section %s: %w", name, err)
	}
	return data, nil
}

// Symbol is a defined function or object symbol.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Type  elf.SymType
}

// Symbols merges .symtab and .dynsym, keeping defined STT_FUNC and
// STT_OBJECT entries, one per (name, value), sorted by value. A missing
// table is not an error; a file with neither yields no symbols.
func (f *File) Symbols() ([]Symbol, error) {
	type key struct {
		name  string
		value uint64
	}
	seen := make(map[key]bool)
	var out []Symbol

	add := func(syms []elf.Symbol, err error) error {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, s := range syms {
			typ := elf.ST_TYPE(s.Info)
			if typ != elf.STT_FUNC && typ != elf.STT_OBJECT {
				continue
			}
			if s.Section == elf.SHN_UNDEF || s.Name == "" {
				continue
			}
			k := key{s.Name, s.Value}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, Symbol{Name: s.Name, Value: s.Value, Size: s.Size, Type: typ})
		}
		return nil
	}
	if err := add(f.ELF.Symbols()); err != nil {
		return nil, fmt.Errorf("elfx: symtab: %w", err)
	}
	if err := add(f.ELF.DynamicSymbols()); err != nil {
		return nil, fmt.Errorf("elfx: dynsym: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

// Symbol looks up a defined symbol by exact name.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, 0, err
	}
	for _, s := range syms {
		if s.Name == name {
			return s.Value, s.Size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// VAToFileOffset converts a virtual address to a file offset. Addresses in
// the zero-filled tail of a segment have no file bytes.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, s := range f.LoadSegments() {
		if va < s.Vaddr || va >= s.Vaddr+s.Filesz {
			continue
		}
		off := va - s.Vaddr + s.Offset
		if off >= uint64(f.size) {
			return 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, off, f.size)
		}
		return off, nil
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads up to n bytes starting at va, clamped to the file.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	if avail := f.size - int64(off); int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	read, err := f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf[:read], nil
}
