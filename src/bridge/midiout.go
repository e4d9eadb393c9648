package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jinjor/rtsynth/src/queue"
	"github.com/jinjor/rtsynth/src/rt"
	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"
)

// DefaultMaxBytes bounds the bytes written to the MIDI sink per drain cycle.
const DefaultMaxBytes = 1024

// ErrNoMIDIOut is returned when no MIDI output port matches.
var ErrNoMIDIOut = errors.New("bridge: MIDI OUT not found")

// Sink is a MIDI byte sink. It is written only from the bridge goroutine.
type Sink interface {
	Write(p []byte) (int, error)
	Close() error
}

// ----- rtmidi Sink ----- //

type midiSink struct {
	drv *rtmididrv.Driver
	out midi.Out
}

func (s *midiSink) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *midiSink) Close() error {
	err := s.out.Close()
	if e := s.drv.Close(); err == nil {
		err = e
	}
	return err
}

func (s *midiSink) String() string {
	return s.out.String()
}

type virtualOutOpener interface {
	OpenVirtualOut(name string) (midi.Out, error)
}

// OpenMIDIOut opens the first MIDI output whose name contains name. An
// empty name selects the first port. When nothing matches, a virtual port
// called name is created if the driver supports it.
func OpenMIDIOut(name string) (Sink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to initialize MIDI driver: %w", err)
	}
	out, err := findMIDIOut(drv, name)
	if err != nil {
		if e := drv.Close(); e != nil {
			log.Printf("failed to close MIDI driver: %v\n", e)
		}
		return nil, err
	}
	if !out.IsOpen() {
		if err := out.Open(); err != nil {
			if e := drv.Close(); e != nil {
				log.Printf("failed to close MIDI driver: %v\n", e)
			}
			return nil, fmt.Errorf("bridge: failed to open MIDI OUT %s: %w", out.String(), err)
		}
	}
	log.Println("opened " + out.String())
	return &midiSink{drv: drv, out: out}, nil
}

func findMIDIOut(drv *rtmididrv.Driver, name string) (midi.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to get MIDI OUT: %w", err)
	}
	log.Printf("MIDI OUT: %v\n", outs)
	for _, out := range outs {
		if name == "" || strings.Contains(out.String(), name) {
			return out, nil
		}
	}
	if name == "" {
		return nil, ErrNoMIDIOut
	}
	var d interface{} = drv
	if v, ok := d.(virtualOutOpener); ok {
		out, err := v.OpenVirtualOut(name)
		if err != nil {
			return nil, fmt.Errorf("bridge: failed to open virtual MIDI OUT %q: %w", name, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoMIDIOut, name)
}

// ----- MIDI Out Bridge ----- //

// MIDIOutBridge drains the message queue and writes the concatenated bytes
// to a MIDI sink once per cycle.
type MIDIOutBridge struct {
	queue *queue.Queue[*Message]
	sink  Sink
	buf   []byte
	loop  *loop
}

// NewMIDIOutBridge ...
// maxBytes <= 0 selects DefaultMaxBytes. A nil sink disables the data path.
func NewMIDIOutBridge(q *queue.Queue[*Message], sink Sink, maxBytes int, opts Options) *MIDIOutBridge {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	b := &MIDIOutBridge{
		queue: q,
		sink:  sink,
		buf:   make([]byte, maxBytes),
	}
	b.loop = newLoop("midi-out", rt.RoleMidiOut, opts, b.drain)
	return b
}

// Start runs the drain loop. It is a no-op while running or without a sink.
func (b *MIDIOutBridge) Start(ctx context.Context) {
	if b.sink == nil {
		log.Println("midi-out: no sink, not starting")
		return
	}
	b.loop.start(ctx)
}

// Stop asks the loop to exit. It does not wait.
func (b *MIDIOutBridge) Stop() {
	b.loop.halt()
}

// Running ...
func (b *MIDIOutBridge) Running() bool {
	return b.loop.running()
}

// Wait blocks until the loop goroutine has exited.
func (b *MIDIOutBridge) Wait() {
	b.loop.wait()
}

// Close stops the loop, waits for it and closes the sink.
func (b *MIDIOutBridge) Close() error {
	b.Stop()
	b.Wait()
	if b.sink == nil {
		return nil
	}
	log.Println("closing MIDI OUT...")
	return b.sink.Close()
}

// drain moves every queued message into one write. Bytes past the buffer
// size are dropped.
func (b *MIDIOutBridge) drain() {
	n := 0
	dropped := 0
	for {
		m, ok := b.queue.TryDequeue()
		if !ok {
			break
		}
		c := copy(b.buf[n:], m.Bytes())
		n += c
		dropped += m.Len() - c
		m.Release()
	}
	if dropped > 0 {
		log.Printf("midi-out: dropped %d bytes over the %d byte limit\n", dropped, len(b.buf))
	}
	if n == 0 {
		return
	}
	if _, err := b.sink.Write(b.buf[:n]); err != nil {
		log.Printf("midi-out: write failed, %d bytes discarded: %v\n", n, err)
	}
}
