package serialmux

import "io"

// SerialPorter is the minimal port surface the mux needs. go.bug.st/serial
// ports satisfy it, as do pipes and test doubles.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
