package audio

// ----- Output ----- //

// SharedOutput holds the last rendered stereo block. It is read by the
// device side of the engine.
type SharedOutput struct {
	Left  []float64
	Right []float64
}

// Output copies the final stereo block into a SharedOutput. A disabled
// output writes silence.
type Output struct {
	blockBase
	in     stereoSource
	shared *SharedOutput
}

// NewOutput ...
func NewOutput(in stereoSource, shared *SharedOutput) *Output {
	return &Output{
		blockBase: blockBase{enabled: true},
		in:        in,
		shared:    shared,
	}
}

// SetBlockSize ...
func (o *Output) SetBlockSize(n int) {
	o.shared.Left = make([]float64, n)
	o.shared.Right = make([]float64, n)
}

// Update ...
func (o *Output) Update() {
	if !o.enabled {
		zero(o.shared.Left)
		zero(o.shared.Right)
		return
	}
	l, r := o.in.Stereo()
	copy(o.shared.Left, l)
	copy(o.shared.Right, r)
}
