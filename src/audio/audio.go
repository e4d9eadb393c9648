package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"sync"

	"github.com/hajimehoshi/oto"
	"github.com/jinjor/rtsynth/src/config"
	"github.com/jinjor/rtsynth/src/rt"
)

const (
	channelNum      = 2
	bitDepthInBytes = 2
	bytesPerFrame   = bitDepthInBytes * channelNum
	minDeviceBuffer = 4096 // bytes
	baseFreq        = 440.0
)

// ----- Utility ----- //

func positiveMod(a float64, b float64) float64 {
	if b < 0 {
		panic("b should not be negative")
	}
	for a < 0 {
		a += b
	}
	return math.Mod(a, b)
}

func noteToFreq(note int) float64 {
	return baseFreq * math.Pow(2, float64(note-69)/12)
}

func toRawMessage(v interface{}) json.RawMessage {
	bytes, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(bytes)
}

// ----- State ----- //

// state is everything the render loop touches. It is guarded by its own
// lock; commands take the same lock, so they land between two updates.
type state struct {
	sync.Mutex
	sampleRate float64
	graph      *Graph
	blocks     []namedBlock
	voices     *Voices
	shared     SharedOutput
	pending    []byte // one rendered block, interleaved 16-bit stereo
	pendingPos int
}

// newState builds Voices -> Filter -> Distortion -> Delay -> Reverb -> Mixer -> Output.
func newState(c config.Audio) (*state, error) {
	sampleRate := float64(c.SampleRate)
	graph, err := NewGraph(c.BlockSize)
	if err != nil {
		return nil, err
	}
	s := &state{sampleRate: sampleRate, graph: graph}

	voices := NewVoices(sampleRate)
	filter := NewFilter(voices, sampleRate)
	distortion := NewDistortion(filter)
	delay := NewDelay(distortion, sampleRate)
	reverb, err := NewReverbBlock(delay, sampleRate)
	if err != nil {
		return nil, err
	}
	reverb.SetEnabled(true)
	mixer := NewMixer(sampleRate)
	mixer.AddInput(reverb, 1.0)
	output := NewOutput(mixer, &s.shared)

	s.voices = voices
	s.blocks = []namedBlock{
		{"voices", voices},
		{"filter", filter},
		{"distortion", distortion},
		{"delay", delay},
		{"reverb", reverb},
		{"mixer", mixer},
		{"output", output},
	}
	var prev Block
	for _, nb := range s.blocks {
		if _, err := graph.Add(nb.block, prev); err != nil {
			return nil, fmt.Errorf("audio: %s: %w", nb.name, err)
		}
		prev = nb.block
	}
	s.resetPending()
	return s, nil
}

func (s *state) resetPending() {
	s.pending = make([]byte, s.graph.BlockSize()*bytesPerFrame)
	s.pendingPos = len(s.pending)
}

func (s *state) setBlockSize(n int) error {
	if err := s.graph.SetBlockSize(n); err != nil {
		return err
	}
	s.resetPending()
	return nil
}

func (s *state) render() {
	s.graph.Update()
	writeBuffer(s.shared.Left, s.pending, 0)
	writeBuffer(s.shared.Right, s.pending, 1)
	s.pendingPos = 0
}

func writeBuffer(out []float64, buf []byte, ch int) {
	const max = 32767
	for i, value := range out {
		if value > 1 {
			value = 1
		} else if value < -1 {
			value = -1
		}
		b := int16(value * max)
		buf[bytesPerFrame*i+2*ch] = byte(b)
		buf[bytesPerFrame*i+2*ch+1] = byte(b >> 8)
	}
}

// ----- Audio ----- //

// Audio renders the block graph as an io.Reader of interleaved 16-bit
// stereo frames.
type Audio struct {
	ctx        context.Context
	otoContext *oto.Context
	scheduler  *rt.Scheduler
	bufferSize int // bytes
	CommandCh  chan []string
	state      *state
}

var _ io.Reader = (*Audio)(nil)

// NewAudio opens the audio device. scheduler may be nil.
func NewAudio(c config.Audio, scheduler *rt.Scheduler) (*Audio, error) {
	a, err := newEngine(c)
	if err != nil {
		return nil, err
	}
	a.scheduler = scheduler
	otoContext, err := oto.NewContext(c.SampleRate, channelNum, bitDepthInBytes, a.bufferSize)
	if err != nil {
		close(a.CommandCh)
		return nil, err
	}
	a.otoContext = otoContext
	return a, nil
}

// newEngine builds the engine without a device.
func newEngine(c config.Audio) (*Audio, error) {
	state, err := newState(c)
	if err != nil {
		return nil, err
	}
	bufferSize := c.BlockSize * bytesPerFrame
	if bufferSize < minDeviceBuffer {
		bufferSize = minDeviceBuffer
	}
	commandCh := make(chan []string, 256)
	a := &Audio{
		ctx:        context.Background(),
		bufferSize: bufferSize,
		CommandCh:  commandCh,
		state:      state,
	}
	go processCommands(a, commandCh)
	return a, nil
}

func (a *Audio) Read(buf []byte) (int, error) {
	select {
	case <-a.ctx.Done():
		log.Println("Read() interrupted.")
		return 0, io.EOF
	default:
	}
	s := a.state
	s.Lock()
	defer s.Unlock()
	n := 0
	for n < len(buf) {
		if s.pendingPos >= len(s.pending) {
			s.render()
		}
		c := copy(buf[n:], s.pending[s.pendingPos:])
		n += c
		s.pendingPos += c
	}
	return n, nil
}

func processCommands(audio *Audio, commandCh <-chan []string) {
	for command := range commandCh {
		if err := audio.update(command); err != nil {
			log.Printf("command %v failed: %v\n", command, err)
		}
	}
	log.Println("processCommands() ended.")
}

func (a *Audio) update(command []string) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}
	s := a.state
	s.Lock()
	defer s.Unlock()

	switch command[0] {
	case "set":
		if len(command) != 4 {
			return fmt.Errorf("usage: set <block> <key> <value>: %v", command)
		}
		b := findBlock(s.blocks, command[1])
		if b == nil {
			return fmt.Errorf("unknown block %q", command[1])
		}
		sb, ok := b.(settable)
		if !ok {
			return fmt.Errorf("block %q has no settings", command[1])
		}
		return sb.set(command[2], command[3])
	case "enable", "disable":
		if len(command) != 2 {
			return fmt.Errorf("usage: %s <block>", command[0])
		}
		b := findBlock(s.blocks, command[1])
		if b == nil {
			return fmt.Errorf("unknown block %q", command[1])
		}
		b.SetEnabled(command[0] == "enable")
	case "note_on":
		if len(command) != 2 && len(command) != 3 {
			return errors.New("usage: note_on <note> [velocity]")
		}
		note, err := parseIntIn(command[1], 0, 127)
		if err != nil {
			return err
		}
		velocity := 127
		if len(command) == 3 {
			velocity, err = parseIntIn(command[2], 0, 127)
			if err != nil {
				return err
			}
		}
		s.noteOn(note, velocity)
	case "note_off":
		if len(command) != 2 {
			return errors.New("usage: note_off <note>")
		}
		note, err := parseIntIn(command[1], 0, 127)
		if err != nil {
			return err
		}
		s.voices.NoteOff(note)
	case "block_size":
		if len(command) != 2 {
			return errors.New("usage: block_size <frames>")
		}
		n, err := strconv.Atoi(command[1])
		if err != nil {
			return err
		}
		return s.setBlockSize(n)
	default:
		return fmt.Errorf("unknown command %v", command[0])
	}
	return nil
}

// velocity 0 is a note-off, as on the wire.
func (s *state) noteOn(note int, velocity int) {
	if velocity == 0 {
		s.voices.NoteOff(note)
		return
	}
	s.voices.NoteOn(note, float64(velocity)/127)
}

type audioJSON struct {
	BlockSize int             `json:"blockSize"`
	Patch     json.RawMessage `json:"patch"`
}

// ApplyJSON ...
func (a *Audio) ApplyJSON(data []byte) error {
	s := a.state
	s.Lock()
	defer s.Unlock()
	var j audioJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("failed to apply JSON to Audio: %w", err)
	}
	resize := j.BlockSize != 0 && j.BlockSize != s.graph.BlockSize()
	if resize {
		if err := checkBlockSize(j.BlockSize); err != nil {
			return err
		}
	}
	commit := func() {}
	if len(j.Patch) != 0 {
		c, err := preparePatch(s.blocks, j.Patch)
		if err != nil {
			return err
		}
		commit = c
	}
	if resize {
		if err := s.setBlockSize(j.BlockSize); err != nil {
			return err
		}
	}
	commit()
	return nil
}

// ToJSON ...
func (a *Audio) ToJSON() []byte {
	s := a.state
	s.Lock()
	defer s.Unlock()
	return toRawMessage(&audioJSON{
		BlockSize: s.graph.BlockSize(),
		Patch:     patchToJSON(s.blocks),
	})
}

// BlockSize ...
func (a *Audio) BlockSize() int {
	a.state.Lock()
	defer a.state.Unlock()
	return a.state.graph.BlockSize()
}

// Close ...
func (a *Audio) Close() error {
	log.Println("Closing Audio...")
	close(a.CommandCh)
	if a.otoContext == nil {
		return nil
	}
	return a.otoContext.Close()
}

// Start copies rendered audio to the device until ctx is done. The calling
// goroutine becomes the audio-transport thread.
func (a *Audio) Start(ctx context.Context) error {
	if a.otoContext == nil {
		return errors.New("audio: no device")
	}
	release, err := a.scheduler.Enter(rt.RoleAudioTransport)
	if err != nil {
		log.Printf("audio: running without realtime priority: %v\n", err)
	}
	defer release()
	p := a.otoContext.NewPlayer()
	defer func() {
		if err := p.Close(); err != nil {
			log.Printf("error: %v", err)
		}
	}()
	a.ctx = ctx

	// block until cancel() called
	if _, err := io.CopyBuffer(p, a, make([]byte, a.bufferSize)); err != nil {
		return err
	}
	log.Println("Start() ended.")
	return nil
}

// AddMidiEvent handles note-on and note-off. Other messages are ignored.
func (a *Audio) AddMidiEvent(data []byte) {
	if len(data) < 3 {
		return
	}
	s := a.state
	s.Lock()
	defer s.Unlock()
	note := int(data[1] & 0x7f)
	switch data[0] >> 4 {
	case 0x8:
		s.voices.NoteOff(note)
	case 0x9:
		s.noteOn(note, int(data[2]&0x7f))
	}
}
