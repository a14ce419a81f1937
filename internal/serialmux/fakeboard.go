package serialmux

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

var errPortClosed = errors.New("serial port closed")

// FakeBoard is an in-memory sensor board for tests. Lines queued with Feed
// are read back by the mux; commands written to it are recorded and the
// RATE=, STREAM= and STATUS? commands are acted on the way the firmware does.
type FakeBoard struct {
	// Block makes Read wait for Feed or Close instead of returning io.EOF
	// once the queued lines are drained. Set it before the mux starts.
	Block bool

	mu        sync.Mutex
	cond      *sync.Cond
	rx        bytes.Buffer
	tx        bytes.Buffer
	readErr   error
	writeErr  error
	closed    bool
	rate      int
	streaming bool
}

func NewFakeBoard() *FakeBoard {
	b := &FakeBoard{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Feed queues lines as if the board had sent them.
func (b *FakeBoard) Feed(lines ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range lines {
		b.rx.WriteString(l)
		b.rx.WriteByte('\n')
	}
	b.cond.Broadcast()
}

// FailNextRead makes the next Read return err.
func (b *FakeBoard) FailNextRead(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr = err
	b.cond.Broadcast()
}

// FailNextWrite makes the next Write return err.
func (b *FakeBoard) FailNextWrite(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErr = err
}

// Written returns everything the host has sent.
func (b *FakeBoard) Written() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx.String()
}

// Rate returns the sample rate last set with RATE=.
func (b *FakeBoard) Rate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Streaming reports whether STREAM=ACCEL is in effect.
func (b *FakeBoard) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streaming
}

// IsClosed reports whether Close was called.
func (b *FakeBoard) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *FakeBoard) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.Block && !b.closed && b.readErr == nil && b.rx.Len() == 0 {
		b.cond.Wait()
	}
	if b.closed {
		return 0, errPortClosed
	}
	if err := b.readErr; err != nil {
		b.readErr = nil
		return 0, err
	}
	return b.rx.Read(p)
}

func (b *FakeBoard) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errPortClosed
	}
	if err := b.writeErr; err != nil {
		b.writeErr = nil
		return 0, err
	}
	b.tx.Write(p)
	for _, cmd := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		b.execute(strings.TrimSpace(cmd))
	}
	return len(p), nil
}

// execute applies one command. Caller holds b.mu.
func (b *FakeBoard) execute(cmd string) {
	switch {
	case strings.HasPrefix(cmd, "RATE="):
		if hz, err := strconv.Atoi(cmd[len("RATE="):]); err == nil {
			b.rate = hz
		}
	case cmd == "STREAM=ACCEL":
		b.streaming = true
	case cmd == "STREAM=OFF", cmd == "RESET":
		b.streaming = false
	case cmd == "STATUS?":
		stream := "OFF"
		if b.streaming {
			stream = "ACCEL"
		}
		b.rx.WriteString("RATE=" + strconv.Itoa(b.rate) + "\nSTREAM=" + stream + "\n")
		b.cond.Broadcast()
	}
}

func (b *FakeBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}

// FakePortFactory hands out a fixed port and records what was opened.
type FakePortFactory struct {
	Port SerialPorter
	Err  error

	mu     sync.Mutex
	opened []string
	mode   *serial.Mode
}

func (f *FakePortFactory) Open(path string, mode *serial.Mode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, path)
	f.mode = mode
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}

// Opened returns the paths passed to Open and the last mode.
func (f *FakePortFactory) Opened() ([]string, *serial.Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...), f.mode
}
