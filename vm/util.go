package vm

import (
	"unsafe"

	"github.com/Redstone-OS/forge/mem"
)

func pageBytes(v mem.VirtAddr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(v))), mem.PageSize)
}

func zeroPage(v mem.VirtAddr) {
	b := pageBytes(v)
	for i := range b {
		b[i] = 0
	}
}

func copyPage(dst, src mem.VirtAddr) {
	copy(pageBytes(dst), pageBytes(src))
}
