package link

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	// DefaultAckTimeout bounds the wait for a command acknowledgement.
	// Long raster legs can hold the ack off for many seconds.
	DefaultAckTimeout = 20 * time.Second

	// settleDelay covers the device reset that opening the port
	// triggers on the controller board.
	settleDelay = 2 * time.Second

	pollTimeout = 50 * time.Millisecond
	pollSleep   = 2 * time.Millisecond
)

// ErrNotOpen is returned when a command is issued on a closed link.
var ErrNotOpen = errors.New("link not open")

// Dialer opens the byte stream behind a port name.
type Dialer func(port string, baud int) (io.ReadWriteCloser, error)

// SerialDialer opens a local serial port. The short read timeout keeps
// the deadline loops in ReadLine responsive.
func SerialDialer(port string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: port, Baud: baud, ReadTimeout: pollTimeout})
}

// Link frames outgoing commands to the stage firmware and classifies
// the lines it sends back. One logical caller drives it at a time; the
// mutex guards the stream pointer and receive buffer, never a whole
// wait, so IsOpen, Port, and Close stay responsive while a ReadLine
// deadline runs down.
type Link struct {
	mx sync.Mutex

	port string
	baud int
	dial Dialer

	settle time.Duration

	rw      io.ReadWriteCloser
	pending []byte

	// Verbose traces every line on the wire.
	Verbose bool
}

// New returns a closed link targeting a local serial port.
func New(port string, baud int) *Link {
	return &Link{port: port, baud: baud, dial: SerialDialer, settle: settleDelay}
}

// NewWithDialer returns a closed link using a custom transport, such as
// a websocket serial bridge.
func NewWithDialer(port string, baud int, dial Dialer) *Link {
	l := New(port, baud)
	l.dial = dial
	return l
}

func (l *Link) IsOpen() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.rw != nil
}

func (l *Link) Port() string {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.port
}

// Open dials the configured port, waits out the device reset, and
// discards whatever the reset left in the receive buffer. Opening an
// already-open link is a no-op.
func (l *Link) Open() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.rw != nil {
		return nil
	}
	rw, err := l.dial(l.port, l.baud)
	if err != nil {
		return err
	}
	time.Sleep(l.settle)
	drain(rw)
	l.rw = rw
	l.pending = nil
	log.Printf("opened %s @ %d", l.port, l.baud)
	return nil
}

// Close releases the stream. Closing a closed link is a no-op.
func (l *Link) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.closeLocked()
}

func (l *Link) closeLocked() error {
	if l.rw == nil {
		return nil
	}
	err := l.rw.Close()
	l.rw = nil
	l.pending = nil
	log.Println("closed", l.port)
	return err
}

// SetPort retargets the link. When it is currently open it is closed
// and reopened on the new port, preserving the open state.
func (l *Link) SetPort(port string) error {
	l.mx.Lock()
	wasOpen := l.rw != nil
	if wasOpen {
		l.closeLocked()
	}
	l.port = port
	l.mx.Unlock()
	if wasOpen {
		return l.Open()
	}
	return nil
}

// SendCommand writes one newline-terminated command.
func (l *Link) SendCommand(cmd string) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.rw == nil {
		return ErrNotOpen
	}
	if l.Verbose {
		log.Println(">>>", cmd)
	}
	_, err := io.WriteString(l.rw, cmd+"\n")
	return err
}

// ReadLine waits for the next non-empty line, trailing whitespace
// stripped. The deadline is wall clock: blank lines and empty polls
// spend it, they never reset it. Partial line bytes carry over to the
// next call.
func (l *Link) ReadLine(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		l.mx.Lock()
		line, ok := l.popLine()
		rw := l.rw
		l.mx.Unlock()
		if ok {
			if l.Verbose {
				log.Println("<<<", line)
			}
			return line, true
		}
		if rw == nil || time.Now().After(deadline) {
			return "", false
		}
		buf := make([]byte, 256)
		n, err := rw.Read(buf)
		if n > 0 {
			l.mx.Lock()
			l.pending = append(l.pending, buf[:n]...)
			l.mx.Unlock()
			continue
		}
		if err != nil && err != io.EOF {
			log.Println("ERROR: read:", err)
			return "", false
		}
		time.Sleep(pollSleep)
	}
}

// popLine pops buffered lines until a non-empty one turns up. Caller
// holds l.mx.
func (l *Link) popLine() (string, bool) {
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimSpace(string(l.pending[:i]))
		l.pending = l.pending[i+1:]
		if line != "" {
			return line, true
		}
	}
}

// WaitForAck discards lines until one carries the ack marker or the
// deadline passes. Non-matching lines are dropped, not replayed.
func (l *Link) WaitForAck(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		line, ok := l.ReadLine(remain)
		if !ok {
			return false
		}
		if Classify(line).Kind == Ack {
			return true
		}
	}
}

// WaitForADCValue discards lines until one carries a sample reading.
func (l *Link) WaitForADCValue(timeout time.Duration) (int, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return 0, false
		}
		line, ok := l.ReadLine(remain)
		if !ok {
			return 0, false
		}
		if r := Classify(line); r.Kind == Sample {
			return r.Value, true
		}
	}
}

// RequestADCValue asks the firmware for one reading and waits for it.
// A miss is an expected event on a noisy scan: it is logged and
// reported as not-ok, never treated as a connection failure.
func (l *Link) RequestADCValue(timeout time.Duration) (int, bool) {
	if err := l.SendCommand("adc read"); err != nil {
		log.Println("ERROR: adc read:", err)
		return 0, false
	}
	v, ok := l.WaitForADCValue(timeout)
	if !ok {
		log.Println("ERROR: no ADC value within", timeout)
	}
	return v, ok
}

// drain discards bytes buffered during the reset window.
func drain(r io.Reader) {
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}
