package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the sensor board's factory link speed.
const DefaultBaudRate = 115200

// SerialPorter is the part of a serial port the mux uses.
type SerialPorter interface {
	io.ReadWriteCloser
}

// PortFactory opens the board's serial device. Tests substitute a factory
// returning a FakeBoard.
type PortFactory interface {
	Open(path string, mode *serial.Mode) (SerialPorter, error)
}

// RealPortFactory opens ports with go.bug.st/serial.
type RealPortFactory struct{}

func (RealPortFactory) Open(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// OpenSerialMux opens path through factory and wraps the port in a SerialMux.
func OpenSerialMux(factory PortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := factory.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}

// NewRealSerialMux opens the sensor board at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(RealPortFactory{}, path, opts)
}
