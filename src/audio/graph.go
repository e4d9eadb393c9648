package audio

import (
	"errors"
	"fmt"
)

// MaxBlockSize is the largest number of frames one graph update may render.
const MaxBlockSize = 8192

// ErrInvalidBlockSize is returned by SetBlockSize for sizes outside
// (0, MaxBlockSize].
var ErrInvalidBlockSize = errors.New("audio: invalid block size")

// ----- Block ----- //

// Block is one processing stage of the graph. Update renders one block in
// place from the output buffers of the blocks before it. It must not
// allocate. SetBlockSize reallocates the buffers the block owns and resets
// indices that depend on the length.
//
// A disabled block still runs in its turn and either passes its input
// through or writes silence.
type Block interface {
	Update()
	SetBlockSize(n int)
	Enabled() bool
	SetEnabled(enabled bool)
}

type monoSource interface {
	Mono() []float64
}

type stereoSource interface {
	Stereo() (left []float64, right []float64)
}

type blockBase struct {
	enabled bool
}

func (b *blockBase) Enabled() bool {
	return b.enabled
}

func (b *blockBase) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// ----- Graph ----- //

// Graph updates its blocks in insertion order, so every block sees the
// output its upstream blocks rendered in the same cycle.
type Graph struct {
	blocks    []Block
	blockSize int
}

// NewGraph ...
func NewGraph(blockSize int) (*Graph, error) {
	if err := checkBlockSize(blockSize); err != nil {
		return nil, err
	}
	return &Graph{blockSize: blockSize}, nil
}

func checkBlockSize(n int) error {
	if n <= 0 || n > MaxBlockSize {
		return fmt.Errorf("%w: %d not in (0,%d]", ErrInvalidBlockSize, n, MaxBlockSize)
	}
	return nil
}

// Add inserts b right after first, or at the head when first is nil, and
// sizes it to the current block size. It returns the stage index of b.
func (g *Graph) Add(b Block, first Block) (int, error) {
	if b == nil {
		return 0, errors.New("audio: nil block")
	}
	if g.Stage(b) >= 0 {
		return 0, errors.New("audio: block already in graph")
	}
	at := 0
	if first != nil {
		i := g.Stage(first)
		if i < 0 {
			return 0, errors.New("audio: upstream block not in graph")
		}
		at = i + 1
	}
	b.SetBlockSize(g.blockSize)
	g.blocks = append(g.blocks, nil)
	copy(g.blocks[at+1:], g.blocks[at:])
	g.blocks[at] = b
	return at, nil
}

// Stage returns the position of b, or -1.
func (g *Graph) Stage(b Block) int {
	for i, x := range g.blocks {
		if x == b {
			return i
		}
	}
	return -1
}

// Update runs one cycle.
func (g *Graph) Update() {
	for _, b := range g.blocks {
		b.Update()
	}
}

// SetBlockSize resizes every block. Nothing is touched when n is invalid.
func (g *Graph) SetBlockSize(n int) error {
	if err := checkBlockSize(n); err != nil {
		return err
	}
	for _, b := range g.blocks {
		b.SetBlockSize(n)
	}
	g.blockSize = n
	return nil
}

// BlockSize ...
func (g *Graph) BlockSize() int {
	return g.blockSize
}

// Len ...
func (g *Graph) Len() int {
	return len(g.blocks)
}
