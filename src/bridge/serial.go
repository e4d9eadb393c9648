package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jinjor/rtsynth/src/queue"
	"github.com/jinjor/rtsynth/src/rt"
	"go.bug.st/serial"
)

// ErrNotOpen is returned when a bridge has no hardware handle.
var ErrNotOpen = errors.New("bridge: port not open")

const (
	serialScratchSize  = 4096
	defaultReadTimeout = 50 * time.Millisecond
)

// ----- Serial Config ----- //

// SerialConfig describes how to open a serial line.
type SerialConfig struct {
	Port        int    // index into the device table
	Device      string // overrides Port when set
	Baud        int
	Mode        string // e.g. "8N1"
	FlowControl bool // asserts RTS only; go.bug.st/serial has no RTS/CTS handshake
	ReadTimeout time.Duration
}

var serialDevices = func() []string {
	var devices []string
	add := func(prefix string, n int) {
		for i := 0; i < n; i++ {
			devices = append(devices, prefix+strconv.Itoa(i))
		}
	}
	add("/dev/ttyS", 16)
	add("/dev/ttyUSB", 6)
	add("/dev/ttyAMA", 2)
	add("/dev/ttyACM", 2)
	add("/dev/rfcomm", 2)
	add("/dev/ircomm", 2)
	add("/dev/cuau", 4)
	add("/dev/cuaU", 4)
	return devices
}()

// DevicePath resolves the device of c.
func (c SerialConfig) DevicePath() (string, error) {
	if c.Device != "" {
		return c.Device, nil
	}
	if c.Port < 0 || c.Port >= len(serialDevices) {
		return "", fmt.Errorf("bridge: serial port number out of range [0,%d): %d", len(serialDevices), c.Port)
	}
	return serialDevices[c.Port], nil
}

// ParseMode parses a "<data bits><parity><stop bits>" string such as "8N1".
func ParseMode(s string) (*serial.Mode, error) {
	if len(s) != 3 {
		return nil, fmt.Errorf("bridge: invalid serial mode %q", s)
	}
	mode := &serial.Mode{}
	switch s[0] {
	case '5', '6', '7', '8':
		mode.DataBits = int(s[0] - '0')
	default:
		return nil, fmt.Errorf("bridge: invalid number of data bits in %q", s)
	}
	switch s[1] {
	case 'N', 'n':
		mode.Parity = serial.NoParity
	case 'E', 'e':
		mode.Parity = serial.EvenParity
	case 'O', 'o':
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("bridge: invalid parity in %q", s)
	}
	switch s[2] {
	case '1':
		mode.StopBits = serial.OneStopBit
	case '2':
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("bridge: invalid number of stop bits in %q", s)
	}
	return mode, nil
}

// SerialPort is the part of a serial line the bridge uses.
type SerialPort interface {
	Read(p []byte) (int, error)
	Close() error
}

// OpenSerial opens a hardware serial line.
func OpenSerial(c SerialConfig) (SerialPort, error) {
	path, err := c.DevicePath()
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	if c.Baud <= 0 {
		return nil, fmt.Errorf("bridge: baud rate must be > 0: %d", c.Baud)
	}
	mode.BaudRate = c.Baud
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("bridge: open %s: %w", path, err)
	}
	if err := configureLine(port, c); err != nil {
		port.Close()
		return nil, fmt.Errorf("bridge: %s: %w", path, err)
	}
	return port, nil
}

// lineControl is the part of serial.Port configured after opening.
type lineControl interface {
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
}

// configureLine sets the read timeout and, with FlowControl, raises RTS.
// The library offers no hardware handshake, so CTS is never watched and
// writes are not paused by the peer.
func configureLine(port lineControl, c SerialConfig) error {
	timeout := c.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return err
	}
	if c.FlowControl {
		if err := port.SetRTS(true); err != nil {
			return err
		}
	}
	return nil
}

// ----- Serial Bridge ----- //

// SerialBridge polls a serial line and enqueues every read as a Message.
type SerialBridge struct {
	queue   *queue.Queue[*Message]
	open    func(SerialConfig) (SerialPort, error)
	loop    *loop
	scratch []byte

	mu      sync.Mutex
	port    SerialPort
	portNum int
}

// NewSerialBridge ...
func NewSerialBridge(q *queue.Queue[*Message], opts Options) *SerialBridge {
	b := &SerialBridge{
		queue:   q,
		open:    OpenSerial,
		scratch: make([]byte, serialScratchSize),
	}
	b.loop = newLoop("serial", rt.RoleSerialPort, opts, b.poll)
	return b
}

// Open opens the line described by c. A failure leaves the bridge without
// a data path; it is not fatal.
func (b *SerialBridge) Open(c SerialConfig) error {
	port, err := b.open(c)
	if err != nil {
		log.Printf("failed to open serial port %d: %v\n", c.Port, err)
		return err
	}
	b.mu.Lock()
	prev := b.port
	b.port = port
	b.portNum = c.Port
	b.mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Printf("failed to close serial port: %v\n", err)
		}
	}
	log.Printf("opened serial port %d\n", c.Port)
	return nil
}

// IsOpen ...
func (b *SerialBridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port != nil
}

// Start runs the polling loop. It is a no-op while running.
func (b *SerialBridge) Start(ctx context.Context) {
	b.loop.start(ctx)
}

// Stop closes the port and asks the loop to exit. It does not wait.
func (b *SerialBridge) Stop() {
	b.closePort()
	b.loop.halt()
}

// Running ...
func (b *SerialBridge) Running() bool {
	return b.loop.running()
}

// Wait blocks until the loop goroutine has exited.
func (b *SerialBridge) Wait() {
	b.loop.wait()
}

func (b *SerialBridge) closePort() {
	b.mu.Lock()
	port := b.port
	b.port = nil
	b.mu.Unlock()
	if port == nil {
		return
	}
	if err := port.Close(); err != nil {
		log.Printf("failed to close serial port: %v\n", err)
	}
}

func (b *SerialBridge) poll() {
	b.mu.Lock()
	port := b.port
	portNum := b.portNum
	b.mu.Unlock()
	if port == nil {
		return
	}
	n, err := port.Read(b.scratch)
	if n > 0 {
		if n > MessageCapacity {
			log.Printf("serial: read of %d bytes truncated to %d\n", n, MessageCapacity)
		}
		b.queue.Enqueue(NewMessage(portNum, b.scratch[:n]))
	}
	if err != nil && b.loop.running() {
		log.Printf("serial: read failed, closing port: %v\n", err)
		b.closePortIf(port)
	}
}

// closePortIf closes port only if it is still the current one.
func (b *SerialBridge) closePortIf(port SerialPort) {
	b.mu.Lock()
	if b.port != port {
		b.mu.Unlock()
		return
	}
	b.port = nil
	b.mu.Unlock()
	if err := port.Close(); err != nil {
		log.Printf("failed to close serial port: %v\n", err)
	}
}
