package mem

// Protection is the R/W/X bitmask shared by VMAs and page-table mappings.
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExec
)

// Subset reports whether p's bits are all present in parent — the check
// the page-fault resolver uses to distinguish a protection violation from
// an unmapped-but-permitted access.
func (p Protection) Subset(parent Protection) bool {
	return p&parent == p
}

func (p Protection) CanWrite() bool { return p&ProtWrite != 0 }
func (p Protection) CanExec() bool  { return p&ProtExec != 0 }
func (p Protection) CanRead() bool  { return p&ProtRead != 0 }
