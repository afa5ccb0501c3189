// Package drivers declares the contracts the kernel core consumes from
// out-of-scope collaborators (§1): concrete block devices, filesystems, and
// console devices. Per the capability-set design note (§9), these are
// interfaces, not a class hierarchy — a concrete driver loaded through the
// module subsystem implements one of these and is registered by reference;
// the core never downcasts or type-switches on a driver's concrete type.
package drivers

import "github.com/Redstone-OS/forge/errno"

// BlockDevice is the contract a storage backend exposes to the filesystem
// layer. Sector numbers are device-relative and zero-based; buf must be
// exactly BlockSize() bytes for both Read and Write.
type BlockDevice interface {
	ReadBlock(sector uint64, buf []byte) errno.Err_t
	WriteBlock(sector uint64, buf []byte) errno.Err_t
	BlockSize() int
	TotalBlocks() uint64
}

// DirEntry is one entry returned by FileSystem.ReadDir: a name and the
// inode number it resolves to within the same filesystem.
type DirEntry struct {
	Name  string
	Inode uint64
}

// FileStat mirrors the subset of inode metadata the kernel core needs to
// hand back to a syscall caller; a concrete filesystem fills it in from
// whatever on-disk format it actually uses.
type FileStat struct {
	Inode uint64
	Size  uint64
	IsDir bool
}

// FileSystem is the contract a mounted filesystem root exposes. Offsets and
// sizes are in bytes; Lookup resolves one path component at a time (the
// core itself walks multi-component paths by repeated Lookup, so a
// filesystem never needs to parse a full path string).
type FileSystem interface {
	Lookup(dirInode uint64, name string) (uint64, errno.Err_t)
	Open(inode uint64) errno.Err_t
	Create(dirInode uint64, name string, isDir bool) (uint64, errno.Err_t)
	ReadDir(dirInode uint64) ([]DirEntry, errno.Err_t)
	Read(inode uint64, offset uint64, buf []byte) (int, errno.Err_t)
	Write(inode uint64, offset uint64, buf []byte) (int, errno.Err_t)
	Stat(inode uint64) (FileStat, errno.Err_t)
}

// Console is the byte-level write contract the early logger and klog's
// installed Sink both ultimately reduce to: a single-byte primitive
// (matching the UART's actual hardware interface) plus a batched
// write-string helper a driver can implement more efficiently than a
// byte-at-a-time loop once it knows its own FIFO depth.
type Console interface {
	WriteByte(b byte) errno.Err_t
	WriteString(s string) (int, errno.Err_t)
}
