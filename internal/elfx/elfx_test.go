package elfx

import (
	"bytes"
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"binmap/internal/elfx/elfxtest"
)

func sample(t *testing.T, machine elf.Machine) string {
	t.Helper()
	return elfxtest.Write(t, elfxtest.Spec{
		Machine: machine,
		Sections: []elfxtest.Section{
			{Name: ".text", Addr: 0x1000, Flags: elf.SHF_EXECINSTR,
				Data: elfxtest.Code(elfxtest.NOP, elfxtest.NOP, elfxtest.NOP, elfxtest.RET)},
			{Name: ".rodata", Addr: 0x2000, Data: []byte("hello, world\x00\x01\x02\x03")},
			{Name: ".bss", Addr: 0x3000, Type: elf.SHT_NOBITS, Flags: elf.SHF_WRITE, Size: 0x100},
		},
		Symbols: []elfxtest.Symbol{
			{Name: "table", Value: 0x2000, Size: 13, Type: elf.STT_OBJECT, Section: ".rodata"},
			{Name: "main", Value: 0x1000, Size: 16, Type: elf.STT_FUNC, Section: ".text"},
			{Name: "text_start", Value: 0x1000, Type: elf.STT_NOTYPE, Section: ".text"},
		},
	})
}

func open(t *testing.T, machine elf.Machine) *File {
	t.Helper()
	ef, err := Open(sample(t, machine))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ef.Close() })
	return ef
}

func TestOpenValid(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)
	if ef.FileSize() == 0 {
		t.Error("file size is 0")
	}
	if !ef.IsARM64() {
		t.Error("expected ARM64")
	}
}

func TestOpenAnyMachine(t *testing.T) {
	ef := open(t, elf.EM_X86_64)
	if ef.IsARM64() {
		t.Error("x86-64 reported as ARM64")
	}
	if ef.Machine() != elf.EM_X86_64 {
		t.Errorf("machine = %v", ef.Machine())
	}
}

func TestOpenRejectsNonELF(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "notelf")
	if err := os.WriteFile(tmp, []byte("not an ELF file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(tmp)
	if !errors.Is(err, ErrNotELF) {
		t.Fatalf("err = %v, want ErrNotELF", err)
	}
}

func TestLoadSegments(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	segs := ef.LoadSegments()
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	for i := 1; i < len(segs); i++ {
		if segs[i-1].Vaddr > segs[i].Vaddr {
			t.Errorf("segments not sorted: %+v", segs)
		}
	}
	if segs[0].Flags&elf.PF_X == 0 {
		t.Error("text segment not executable")
	}
	if segs[2].Filesz != 0 || segs[2].Memsz != 0x100 {
		t.Errorf("bss segment = %+v", segs[2])
	}

	base, length, err := ef.Span()
	if err != nil {
		t.Fatal(err)
	}
	if base != 0x1000 || length != 0x2100 {
		t.Errorf("span = 0x%x+0x%x, want 0x1000+0x2100", base, length)
	}
}

func TestSections(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	secs := ef.Sections()
	if len(secs) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(secs), secs)
	}
	want := []string{".text", ".rodata", ".bss"}
	for i, s := range secs {
		if s.Name != want[i] {
			t.Errorf("section %d = %s, want %s", i, s.Name, want[i])
		}
	}
	if !secs[0].Exec() || secs[1].Exec() {
		t.Error("exec flag wrong")
	}
	if secs[2].HasBits() || !secs[1].HasBits() {
		t.Error("bits flag wrong")
	}

	data, err := ef.SectionData(".rodata")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("hello, world")) {
		t.Errorf("rodata = %q", data)
	}
	if _, err := ef.SectionData(".nope"); err == nil {
		t.Error("expected error for missing section")
	}
}

func TestSymbols(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	syms, err := ef.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 {
		t.Fatalf("got %d symbols, want 2 (NOTYPE dropped): %+v", len(syms), syms)
	}
	if syms[0].Name != "main" || syms[0].Type != elf.STT_FUNC {
		t.Errorf("first symbol = %+v", syms[0])
	}
	if syms[1].Name != "table" || syms[1].Type != elf.STT_OBJECT {
		t.Errorf("second symbol = %+v", syms[1])
	}
}

func TestSymbolLookup(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	va, size, err := ef.Symbol("table")
	if err != nil {
		t.Fatal(err)
	}
	if va != 0x2000 || size != 13 {
		t.Errorf("table = 0x%x/%d", va, size)
	}
}

func TestSymbolNotFound(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	_, _, err := ef.Symbol("missing")
	if !errors.Is(err, ErrNoSymbol) {
		t.Fatalf("err = %v, want ErrNoSymbol", err)
	}
}

func TestVAToFileOffset(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	text, err := ef.VAToFileOffset(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	ro, err := ef.VAToFileOffset(0x2000)
	if err != nil {
		t.Fatal(err)
	}
	if ro-text != 16 {
		t.Errorf("rodata follows text at +%d, want +16", ro-text)
	}

	b, err := ef.ReadBytesAtVA(0x2007, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "world" {
		t.Errorf("read %q", b)
	}
}

func TestVAToFileOffsetInvalid(t *testing.T) {
	ef := open(t, elf.EM_AARCH64)

	for _, va := range []uint64{0xDEADBEEFDEADBEEF, 0x3000, 0x1800} {
		if _, err := ef.VAToFileOffset(va); !errors.Is(err, ErrNoSegment) {
			t.Errorf("VA 0x%x: err = %v, want ErrNoSegment", va, err)
		}
	}
}

func FuzzELFOpen(f *testing.F) {
	f.Add([]byte("\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("not an elf at all"))
	f.Add([]byte{})
	f.Add(elfxtest.Build(elfxtest.Spec{
		Machine:  elf.EM_AARCH64,
		Sections: []elfxtest.Section{{Name: ".text", Addr: 0x1000, Flags: elf.SHF_EXECINSTR, Data: elfxtest.Code(elfxtest.RET)}},
	}))

	f.Fuzz(func(t *testing.T, data []byte) {
		tmp := filepath.Join(t.TempDir(), "fuzz.so")
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			t.Fatal(err)
		}
		ef, err := Open(tmp)
		if err != nil {
			return
		}
		ef.FileSize()
		ef.LoadSegments()
		ef.Span()
		ef.Sections()
		ef.Symbols()
		ef.ReadBytesAtVA(0, 16)
		ef.Close()
	})
}
