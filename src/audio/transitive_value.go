package audio

import "math"

// ----- Transitive Value ----- //

// transitiveValue ramps linearly to a target over a fixed number of samples.
// Gain stages use it so parameter changes do not click.
type transitiveValue struct {
	initialValue float64
	targetValue  float64
	value        float64
	length       int // samples
	pos          int
}

func (tv *transitiveValue) init(value float64) {
	tv.initialValue = value
	tv.targetValue = value
	tv.value = value
	tv.length = 0
	tv.pos = 0
}

func (tv *transitiveValue) linear(length int, targetValue float64) {
	if length <= 0 {
		tv.init(targetValue)
		return
	}
	tv.initialValue = tv.value
	tv.targetValue = targetValue
	tv.length = length
	tv.pos = 0
}

func (tv *transitiveValue) moving() bool {
	return tv.pos < tv.length
}

func (tv *transitiveValue) step() float64 {
	if !tv.moving() {
		return tv.value
	}
	tv.pos++
	t := float64(tv.pos) / float64(tv.length)
	tv.value = t*tv.targetValue + (1-t)*tv.initialValue
	if tv.pos >= tv.length {
		tv.value = tv.targetValue
	}
	return tv.value
}

// 63% closer to target when pos=1.0
func setTargetAtTime(initialValue float64, targetValue float64, pos float64) float64 {
	return targetValue + (initialValue-targetValue)*math.Exp(-pos)
}
