// Command forgebuild packages a compiled ELF64 module into the FRGM
// image format the kernel's module loader consumes: a fixed header,
// followed by the code and data regions straight off the ELF's PT_LOAD
// segments, followed by a table of R_X86_64_RELATIVE fixups collected
// from the ELF's dynamic relocation section.
//
// The header layout mirrors module.Header in the kernel tree byte for
// byte; it is duplicated here rather than imported so this tool never
// links any kernel-only code, only the wire format it produces.
package main

import (
	"debug/elf"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

var magic = [4]byte{'F', 'R', 'G', 'M'}

const (
	abiVersion = 1
	pageSize   = 4096
	headerSize = 4 + 4 + 4 + 4 + 4 + 2 + 4
)

func main() {
	out := flag.String("o", "", "output module image path")
	rights := flag.Uint("rights", 0, "requested cap.Rights bitmask")
	flag.Parse()

	if flag.NArg() != 1 || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: forgebuild -o <image.mod> <elf-binary>")
		os.Exit(2)
	}

	f, err := elf.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebuild: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		fmt.Fprintln(os.Stderr, "forgebuild: not an ELF64 x86_64 object")
		os.Exit(1)
	}

	var code, data []byte
	var entryOff, dataBase uint64
	haveEntry, haveData := false, false

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		bytes := make([]byte, prog.Memsz)
		n, err := prog.ReadAt(bytes[:prog.Filesz], 0)
		if err != nil && n == 0 {
			fmt.Fprintf(os.Stderr, "forgebuild: reading segment: %v\n", err)
			os.Exit(1)
		}
		if prog.Flags&elf.PF_X != 0 {
			if f.Entry >= prog.Vaddr && f.Entry < prog.Vaddr+prog.Memsz {
				entryOff = uint64(len(code)) + (f.Entry - prog.Vaddr)
				haveEntry = true
			}
			code = append(code, bytes...)
		} else {
			if !haveData {
				dataBase = prog.Vaddr
				haveData = true
			}
			data = append(data, bytes...)
		}
	}
	if !haveEntry {
		fmt.Fprintln(os.Stderr, "forgebuild: entry point is not inside any executable segment")
		os.Exit(1)
	}

	relocs, err := relativeRelocs(f, dataBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebuild: %v\n", err)
		os.Exit(1)
	}

	code = padToPage(code)
	data = padToPage(data)

	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], abiVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(code)/pageSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(data)/pageSize))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(entryOff))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(*rights))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(len(relocs)))

	buf = append(buf, code...)
	buf = append(buf, data...)
	for _, r := range relocs {
		var rb [8]byte
		binary.LittleEndian.PutUint64(rb[:], r)
		buf = append(buf, rb[:]...)
	}

	if err := os.WriteFile(*out, buf, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "forgebuild: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: %d code pages, %d data pages, %d relocations\n",
		*out, len(code)/pageSize, len(data)/pageSize, len(relocs))
}

// relativeRelocs collects the data-relative offset of every
// R_X86_64_RELATIVE entry in the ELF's dynamic relocation sections,
// translated from a virtual address into an offset within the data
// region by subtracting dataBase, the load address of the first
// non-executable PT_LOAD segment.
func relativeRelocs(f *elf.File, dataBase uint64) ([]uint64, error) {
	var out []uint64
	for _, name := range []string{".rela.dyn", ".rel.dyn"} {
		sect := f.Section(name)
		if sect == nil {
			continue
		}
		data, err := sect.Data()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		const relaEntSize = 24 // Elf64_Rela: r_offset, r_info, r_addend
		for off := 0; off+relaEntSize <= len(data); off += relaEntSize {
			rOffset := binary.LittleEndian.Uint64(data[off : off+8])
			rInfo := binary.LittleEndian.Uint64(data[off+8 : off+16])
			if elf.R_X86_64(rInfo&0xffffffff) != elf.R_X86_64_RELATIVE {
				continue
			}
			out = append(out, rOffset-dataBase)
		}
	}
	return out, nil
}

func padToPage(b []byte) []byte {
	rem := len(b) % pageSize
	if rem == 0 {
		if len(b) == 0 {
			return make([]byte, pageSize)
		}
		return b
	}
	return append(b, make([]byte, pageSize-rem)...)
}
