package module

import (
	"encoding/binary"
	"testing"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

func buildImage(t *testing.T, codePages, dataPages, entryOff uint32, relocs []uint64) []byte {
	t.Helper()
	code := make([]byte, int(codePages)*mem.PageSize)
	data := make([]byte, int(dataPages)*mem.PageSize)

	buf := make([]byte, headerSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], CurrentABIVersion)
	binary.LittleEndian.PutUint32(buf[8:12], codePages)
	binary.LittleEndian.PutUint32(buf[12:16], dataPages)
	binary.LittleEndian.PutUint32(buf[16:20], entryOff)
	binary.LittleEndian.PutUint16(buf[20:22], 0)
	binary.LittleEndian.PutUint32(buf[22:26], uint32(len(relocs)))

	buf = append(buf, code...)
	buf = append(buf, data...)
	for _, r := range relocs {
		var rb [8]byte
		binary.LittleEndian.PutUint64(rb[:], r)
		buf = append(buf, rb[:]...)
	}
	return buf
}

func TestParseValidImage(t *testing.T) {
	img := buildImage(t, 1, 1, 0, []uint64{8})
	p, err := Parse(img)
	if err != errno.OK {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Code) != mem.PageSize || len(p.Data) != mem.PageSize {
		t.Fatalf("Code/Data lengths = %d/%d, want %d/%d", len(p.Code), len(p.Data), mem.PageSize, mem.PageSize)
	}
	if len(p.Relocations) != 1 || p.Relocations[0].Offset != 8 {
		t.Fatalf("Relocations = %+v, want one entry at offset 8", p.Relocations)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	img := buildImage(t, 1, 0, 0, nil)
	img[0] = 'X'
	if _, err := Parse(img); err != errno.InvalidArgument {
		t.Fatalf("Parse() = %v, want InvalidArgument", err)
	}
}

func TestParseRejectsTruncatedImage(t *testing.T) {
	img := buildImage(t, 1, 1, 0, nil)
	if _, err := Parse(img[:len(img)-mem.PageSize]); err != errno.InvalidArgument {
		t.Fatalf("Parse() on truncated image = %v, want InvalidArgument", err)
	}
}

func TestParseRejectsEntryOutsideCode(t *testing.T) {
	img := buildImage(t, 1, 0, uint32(mem.PageSize), nil)
	if _, err := Parse(img); err != errno.InvalidArgument {
		t.Fatalf("Parse() with out-of-range entry = %v, want InvalidArgument", err)
	}
}

func TestParseRejectsZeroCodePages(t *testing.T) {
	img := buildImage(t, 0, 0, 0, nil)
	if _, err := Parse(img); err != errno.InvalidArgument {
		t.Fatalf("Parse() with zero code pages = %v, want InvalidArgument", err)
	}
}
