// Package serialmux owns the serial link to the motion sensor board. One
// reader fans every line out to any number of subscribers; commands from
// any goroutine are written to the board one at a time.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gesture.auth/internal/httputil"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// SubscriberBuffer is the number of lines buffered per subscriber. At the
// board's streaming rate this covers several seconds of a slow reader before
// lines are dropped.
const SubscriberBuffer = 512

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialMuxInterface is what the daemon needs from the board link. The real
// mux and DisabledSerialMux both satisfy it.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel receiving every non-empty line
	// from the board. The channel is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one command line to the board.
	SendCommand(string) error
	// Monitor reads the board until ctx is done, the port reports EOF or a
	// read fails.
	Monitor(context.Context) error
	Close() error
	// Initialize sets the sample rate and starts accelerometer streaming.
	Initialize(rateHz int) error
	// AttachAdminRoutes adds the board console under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes one sensor board port.
type SerialMux[T SerialPorter] struct {
	port  T
	state *DeviceState

	subMu sync.Mutex
	subs  map[string]chan string

	writeMu sync.Mutex
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ SerialMuxInterface = (*SerialMux[SerialPorter])(nil)

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:  port,
		state: NewDeviceState(),
		subs:  make(map[string]chan string),
	}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	var b [8]byte
	crand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string, SubscriberBuffer)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed.Load() {
		close(ch)
	} else {
		s.subs[id] = ch
	}
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// publish delivers line to every subscriber without blocking. Lines for a
// full subscriber are counted in Dropped.
func (s *SerialMux[T]) publish(line string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// Initialize sets the sample rate and switches the board to streaming raw
// accelerometer readings, one sample per line.
func (s *SerialMux[T]) Initialize(rateHz int) error {
	rate, err := RateCommand(rateHz)
	if err != nil {
		return err
	}
	for _, command := range []string{rate, "STREAM=ACCEL"} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command followed by a newline, adding one if missing.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := io.WriteString(s.port, command)
	switch {
	case err != nil:
		return err
	case n != len(command):
		return ErrWriteFailed
	}
	return nil
}

// Dropped returns the number of lines lost to full subscriber buffers.
func (s *SerialMux[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// State returns the last status values reported by the board.
func (s *SerialMux[T]) State() *DeviceState {
	return s.state
}

// Monitor reads the board and publishes each trimmed, non-empty line. Status
// lines also update State. It returns nil on EOF or after Close, ctx.Err()
// on cancellation, and the read error otherwise.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	// Scan blocks in Read, so it runs apart from the cancellation select.
	// Every exit sends exactly one value on readErr before lines closes.
	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				switch {
				case ctx.Err() != nil:
					return ctx.Err()
				case err != nil && !s.closed.Load():
					return err
				}
				return nil
			}
			if s.closed.Load() {
				return nil
			}
			s.handleLine(strings.TrimSpace(line))
		}
	}
}

func (s *SerialMux[T]) handleLine(line string) {
	if line == "" {
		return
	}
	if ClassifyPayload(line) == EventTypeStatus {
		if err := s.state.Apply(line); err != nil {
			logf("ignoring status line %q: %v", line, err)
		}
	}
	s.publish(line)
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the sensor board", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, allowedCommands); err != nil {
			logf("failed to render send-command: %v", err)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "missing command")
			return
		}
		if err := ValidateCommand(command); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to write command")
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": command})
	})

	debug.HandleFunc("sensor-state", "last status reported by the sensor board", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]any{
			"state":   s.state.Snapshot(),
			"dropped": s.Dropped(),
		})
	})

	// Server-Sent Events stream of every line from the board.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.WriteJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, adminTemplateFS, "templates/tail.js")
	})
}
