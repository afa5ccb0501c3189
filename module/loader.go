package module

import (
	"encoding/binary"

	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
	"github.com/Redstone-OS/forge/vm"
)

// Magic identifies a Forge-format relocatable module image; the four
// bytes are checked before anything else in an image is trusted.
var Magic = [4]byte{'F', 'R', 'G', 'M'}

const CurrentABIVersion = 1

// MaxCodePages bounds how large a single module's code region may be,
// rejecting a manifest that claims more before any allocation happens.
const MaxCodePages = 4096

// Header is the fixed-size prefix of a module image, parsed without
// trusting any length field it itself contains until validated.
type Header struct {
	Magic          [4]byte
	ABIVersion     uint32
	CodePages      uint32
	DataPages      uint32
	EntryOffset    uint32
	RequestedRights cap.Rights
	NumRelocations uint32
}

const headerSize = 4 + 4 + 4 + 4 + 4 + 2 + 4

// Relocation is one R_X86_64_RELATIVE-style fixup: add the load bias to
// the 8 bytes at Offset within the data region.
type Relocation struct {
	Offset uint64
}

// ParsedImage is a validated, not-yet-loaded module image.
type ParsedImage struct {
	Header      Header
	Code        []byte
	Data        []byte
	Relocations []Relocation
}

// Parse validates header magic, ABI version, and the declared page-count
// limits, then slices out the code/data/relocation sections. It performs
// no allocation and touches no address space — a malformed image is
// rejected before the loader commits any kernel VMM resources to it.
func Parse(image []byte) (*ParsedImage, errno.Err_t) {
	if len(image) < headerSize {
		return nil, errno.InvalidArgument
	}
	var h Header
	copy(h.Magic[:], image[0:4])
	if h.Magic != Magic {
		return nil, errno.InvalidArgument
	}
	h.ABIVersion = binary.LittleEndian.Uint32(image[4:8])
	if h.ABIVersion != CurrentABIVersion {
		return nil, errno.NotSupported
	}
	h.CodePages = binary.LittleEndian.Uint32(image[8:12])
	h.DataPages = binary.LittleEndian.Uint32(image[12:16])
	h.EntryOffset = binary.LittleEndian.Uint32(image[16:20])
	h.RequestedRights = cap.Rights(binary.LittleEndian.Uint16(image[20:22]))
	h.NumRelocations = binary.LittleEndian.Uint32(image[22:26])

	if h.CodePages == 0 || h.CodePages > MaxCodePages {
		return nil, errno.InvalidArgument
	}

	off := headerSize
	codeLen := int(h.CodePages) * mem.PageSize
	dataLen := int(h.DataPages) * mem.PageSize
	if off+codeLen+dataLen > len(image) {
		return nil, errno.InvalidArgument
	}
	code := image[off : off+codeLen]
	off += codeLen
	data := image[off : off+dataLen]
	off += dataLen

	relocs := make([]Relocation, 0, h.NumRelocations)
	for i := uint32(0); i < h.NumRelocations; i++ {
		if off+8 > len(image) {
			return nil, errno.InvalidArgument
		}
		relocs = append(relocs, Relocation{Offset: binary.LittleEndian.Uint64(image[off : off+8])})
		off += 8
	}

	if h.EntryOffset >= uint32(len(code)) {
		return nil, errno.InvalidArgument
	}

	return &ParsedImage{Header: h, Code: code, Data: data, Relocations: relocs}, errno.OK
}

// Loaded is a module's committed code/data mapping in the kernel's own
// address space, ready to run in kernel mode under the sandbox's capability
// restriction.
type Loaded struct {
	CodeBase mem.VirtAddr
	DataBase mem.VirtAddr
	Entry    uintptr
}

// Load allocates code and data VMAs from as, copies the image's sections
// in, applies relocations against the chosen load bias, then flips the
// code region to read-only+executable — the W^X transition the design
// requires: code pages are writable only up to the moment relocation
// finishes, never simultaneously writable and executable.
func Load(as *vm.AddressSpace, img *ParsedImage) (*Loaded, errno.Err_t) {
	codeLen := uint64(len(img.Code))
	dataLen := uint64(len(img.Data))

	codeAddr, err := as.MapAnonEager(codeLen, mem.ProtRead|mem.ProtWrite)
	if err != errno.OK {
		return nil, err
	}
	dataAddr, err := as.MapAnonEager(dataLen, mem.ProtRead|mem.ProtWrite)
	if err != errno.OK {
		as.Munmap(codeAddr)
		return nil, err
	}

	if werr := writeVMA(as, codeAddr, img.Code); werr != errno.OK {
		as.Munmap(codeAddr)
		as.Munmap(dataAddr)
		return nil, werr
	}
	if werr := writeVMA(as, dataAddr, img.Data); werr != errno.OK {
		as.Munmap(codeAddr)
		as.Munmap(dataAddr)
		return nil, werr
	}

	bias := uint64(dataAddr)
	for _, r := range img.Relocations {
		if r.Offset+8 > dataLen {
			as.Munmap(codeAddr)
			as.Munmap(dataAddr)
			return nil, errno.InvalidArgument
		}
		if perr := patchVMA(as, dataAddr.Add(r.Offset), bias); perr != errno.OK {
			as.Munmap(codeAddr)
			as.Munmap(dataAddr)
			return nil, perr
		}
	}

	for off := uint64(0); off < codeLen; off += mem.PageSize {
		if perr := as.Mapper().Protect(codeAddr.Add(off), mem.MapFlags{Write: false, Exec: true, User: false}); perr != errno.OK {
			as.Munmap(codeAddr)
			as.Munmap(dataAddr)
			return nil, perr
		}
	}

	return &Loaded{
		CodeBase: codeAddr,
		DataBase: dataAddr,
		Entry:    uintptr(codeAddr) + uintptr(img.Header.EntryOffset),
	}, errno.OK
}

// writeVMA copies src into the already-populated region starting at addr
// (MapAnonEager guarantees every page is backed, so Translate always
// succeeds here).
func writeVMA(as *vm.AddressSpace, addr mem.VirtAddr, src []byte) errno.Err_t {
	for i := 0; i < len(src); i += mem.PageSize {
		end := i + mem.PageSize
		if end > len(src) {
			end = len(src)
		}
		pageAddr := addr.Add(uint64(i))
		pa, ok := as.Translate(pageAddr)
		if !ok {
			return errno.NotMapped
		}
		dst := as.HHDM().BytesAt(pa, end-i)
		copy(dst, src[i:end])
	}
	return errno.OK
}

func patchVMA(as *vm.AddressSpace, addr mem.VirtAddr, bias uint64) errno.Err_t {
	pa, ok := as.Translate(addr)
	if !ok {
		return errno.NotMapped
	}
	buf := as.HHDM().BytesAt(pa, 8)
	orig := binary.LittleEndian.Uint64(buf)
	binary.LittleEndian.PutUint64(buf, orig+bias)
	return errno.OK
}
