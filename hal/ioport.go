package hal

//go:noescape
func inbAsm(port uint16) uint8

//go:noescape
func outbAsm(port uint16, val uint8)

//go:noescape
func inwAsm(port uint16) uint16

//go:noescape
func outwAsm(port uint16, val uint16)

//go:noescape
func indAsm(port uint16) uint32

//go:noescape
func outdAsm(port uint16, val uint32)

// Port is a single legacy I/O port address. Drivers outside this package
// never issue IN/OUT directly; they go through a Port value handed to them
// at registration so the HAL retains sole ownership of the instruction.
type Port uint16

func (p Port) InB() uint8           { return inbAsm(uint16(p)) }
func (p Port) OutB(v uint8)         { outbAsm(uint16(p), v) }
func (p Port) InW() uint16          { return inwAsm(uint16(p)) }
func (p Port) OutW(v uint16)        { outwAsm(uint16(p), v) }
func (p Port) InD() uint32          { return indAsm(uint16(p)) }
func (p Port) OutD(v uint32)        { outdAsm(uint16(p), v) }
