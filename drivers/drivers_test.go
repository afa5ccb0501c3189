package drivers

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
)

// fakeBlockDevice and fakeFileSystem exist only to pin BlockDevice and
// FileSystem as contracts a trivial in-memory implementation can satisfy
// without any real hardware or HAL access — the same role a mock plays in
// a driver unit test, not a stand-in for a real driver.
type fakeBlockDevice struct {
	blocks [][]byte
}

func (f *fakeBlockDevice) ReadBlock(sector uint64, buf []byte) errno.Err_t {
	if sector >= uint64(len(f.blocks)) {
		return errno.InvalidArgument
	}
	copy(buf, f.blocks[sector])
	return errno.OK
}

func (f *fakeBlockDevice) WriteBlock(sector uint64, buf []byte) errno.Err_t {
	if sector >= uint64(len(f.blocks)) {
		return errno.InvalidArgument
	}
	copy(f.blocks[sector], buf)
	return errno.OK
}

func (f *fakeBlockDevice) BlockSize() int      { return 512 }
func (f *fakeBlockDevice) TotalBlocks() uint64 { return uint64(len(f.blocks)) }

func newFakeBlockDevice(n int) *fakeBlockDevice {
	f := &fakeBlockDevice{blocks: make([][]byte, n)}
	for i := range f.blocks {
		f.blocks[i] = make([]byte, 512)
	}
	return f
}

func TestBlockDeviceContractRoundTrips(t *testing.T) {
	var dev BlockDevice = newFakeBlockDevice(2)
	buf := make([]byte, dev.BlockSize())
	for i := range buf {
		buf[i] = 0x42
	}
	if err := dev.WriteBlock(0, buf); err != errno.OK {
		t.Fatalf("WriteBlock: %v", err)
	}
	out := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(0, out); err != errno.OK {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(out) != string(buf) {
		t.Fatalf("ReadBlock returned %v, want %v", out, buf)
	}
	if err := dev.ReadBlock(99, out); err != errno.InvalidArgument {
		t.Fatalf("ReadBlock(out of range) = %v, want InvalidArgument", err)
	}
}

func TestDirEntryAndFileStatAreValueTypes(t *testing.T) {
	e := DirEntry{Name: "foo", Inode: 7}
	if e.Name != "foo" || e.Inode != 7 {
		t.Fatalf("DirEntry fields not preserved: %+v", e)
	}
	s := FileStat{Inode: 7, Size: 1024, IsDir: false}
	if s.Size != 1024 {
		t.Fatalf("FileStat.Size = %d, want 1024", s.Size)
	}
}
