package boot

import (
	"errors"

	"github.com/Redstone-OS/forge/drivers"
	"github.com/Redstone-OS/forge/errno"
)

// consoleSink adapts a drivers.Console (the byte-oriented contract a real
// UART or framebuffer-text driver implements) to klog's io.Writer-shaped
// Sink, so Install can hand klog whatever console the boot sequence found
// without klog itself ever needing to know about drivers.Console.
type consoleSink struct {
	c drivers.Console
}

func (s consoleSink) Write(p []byte) (int, error) {
	n, err := s.c.WriteString(string(p))
	if err != errno.OK {
		return n, errors.New(err.Error())
	}
	return n, nil
}
