// Package elfxtest writes small, well-formed ELF64 files for tests.
//
// Every section gets its own PT_LOAD segment at the section's address, so
// VA-addressed reads see the section bytes.
package elfxtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Section is an allocated section. NOBITS sections occupy Size bytes of
// memory and no file bytes.
type Section struct {
	Name  string
	Addr  uint64
	Data  []byte
	Size  uint64 // NOBITS only
	Type  elf.SectionType
	Flags elf.SectionFlag
}

func (s Section) memsz() uint64 {
	if s.Type == elf.SHT_NOBITS {
		return s.Size
	}
	return uint64(len(s.Data))
}

// Symbol is written to .symtab against the named section.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Type    elf.SymType
	Section string
}

// Spec describes the file.
type Spec struct {
	Machine  elf.Machine
	Sections []Section
	Symbols  []Symbol
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	t := &strtab{}
	t.buf.WriteByte(0)
	return t
}

func (t *strtab) add(s string) uint32 {
	if s == "" {
		return 0
	}
	off := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	return off
}

// Build returns the file image.
func Build(spec Spec) []byte {
	le := binary.LittleEndian
	const (
		ehsize    = 64
		phentsize = 56
		shentsize = 64
		symsize   = 24
	)
	phnum := len(spec.Sections)
	dataOff := uint64(ehsize + phnum*phentsize)

	// Section contents.
	var body bytes.Buffer
	offsets := make([]uint64, len(spec.Sections))
	index := make(map[string]uint16, len(spec.Sections))
	for i, s := range spec.Sections {
		offsets[i] = dataOff + uint64(body.Len())
		index[s.Name] = uint16(i + 1)
		if s.Type != elf.SHT_NOBITS {
			body.Write(s.Data)
		}
	}

	strs := newStrtab()
	var syms bytes.Buffer
	binary.Write(&syms, le, elf.Sym64{})
	for _, s := range spec.Symbols {
		binary.Write(&syms, le, elf.Sym64{
			Name:  strs.add(s.Name),
			Info:  elf.ST_INFO(elf.STB_GLOBAL, s.Type),
			Shndx: index[s.Section],
			Value: s.Value,
			Size:  s.Size,
		})
	}
	symtabOff := dataOff + uint64(body.Len())
	body.Write(syms.Bytes())
	strtabOff := dataOff + uint64(body.Len())
	body.Write(strs.buf.Bytes())

	shstrs := newStrtab()
	names := make([]uint32, len(spec.Sections))
	for i, s := range spec.Sections {
		names[i] = shstrs.add(s.Name)
	}
	symtabName := shstrs.add(".symtab")
	strtabName := shstrs.add(".strtab")
	shstrtabName := shstrs.add(".shstrtab")
	shstrtabOff := dataOff + uint64(body.Len())
	body.Write(shstrs.buf.Bytes())

	shoff := dataOff + uint64(body.Len())
	shnum := len(spec.Sections) + 4
	symtabIdx := uint32(len(spec.Sections) + 1)

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(spec.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     ehsize,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(phnum),
		Shentsize: shentsize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shnum - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&out, le, hdr)

	for i, s := range spec.Sections {
		flags := elf.PF_R
		if s.Flags&elf.SHF_WRITE != 0 {
			flags |= elf.PF_W
		}
		if s.Flags&elf.SHF_EXECINSTR != 0 {
			flags |= elf.PF_X
		}
		filesz := uint64(len(s.Data))
		if s.Type == elf.SHT_NOBITS {
			filesz = 0
		}
		binary.Write(&out, le, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(flags),
			Off:    offsets[i],
			Vaddr:  s.Addr,
			Paddr:  s.Addr,
			Filesz: filesz,
			Memsz:  s.memsz(),
			Align:  1,
		})
	}

	out.Write(body.Bytes())

	binary.Write(&out, le, elf.Section64{})
	for i, s := range spec.Sections {
		typ := s.Type
		if typ == elf.SHT_NULL {
			typ = elf.SHT_PROGBITS
		}
		binary.Write(&out, le, elf.Section64{
			Name:      names[i],
			Type:      uint32(typ),
			Flags:     uint64(s.Flags | elf.SHF_ALLOC),
			Addr:      s.Addr,
			Off:       offsets[i],
			Size:      s.memsz(),
			Addralign: 1,
		})
	}
	binary.Write(&out, le, elf.Section64{
		Name:      symtabName,
		Type:      uint32(elf.SHT_SYMTAB),
		Off:       symtabOff,
		Size:      uint64(syms.Len()),
		Link:      symtabIdx + 1,
		Info:      1,
		Addralign: 8,
		Entsize:   symsize,
	})
	binary.Write(&out, le, elf.Section64{
		Name:      strtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       strtabOff,
		Size:      uint64(strs.buf.Len()),
		Addralign: 1,
	})
	binary.Write(&out, le, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrtabOff,
		Size:      uint64(shstrs.buf.Len()),
		Addralign: 1,
	})
	return out.Bytes()
}

// Write builds spec into a file under t.TempDir and returns its path.
func Write(t testing.TB, spec Spec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.so")
	if err := os.WriteFile(path, Build(spec), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ARM64 encodings used by test fixtures.
const (
	NOP = 0xD503201F
	RET = 0xD65F03C0
)

// B encodes an unconditional branch from pc to target.
func B(pc, target uint64) uint32 {
	return 0x14000000 | uint32((int64(target)-int64(pc))/4)&0x03FFFFFF
}

// BL encodes a call from pc to target.
func BL(pc, target uint64) uint32 {
	return 0x94000000 | uint32((int64(target)-int64(pc))/4)&0x03FFFFFF
}

// CBZ encodes cbz x0 from pc to target.
func CBZ(pc, target uint64) uint32 {
	return 0xB4000000 | (uint32((int64(target)-int64(pc))/4)&0x7FFFF)<<5
}

// Code assembles 32-bit words little-endian.
func Code(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
