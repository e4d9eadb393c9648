package audio

import (
	"errors"
	"strings"
	"testing"
)

type recordingBlock struct {
	blockBase
	name  string
	log   *strings.Builder
	sizes []int
}

func newRecordingBlock(name string, log *strings.Builder) *recordingBlock {
	return &recordingBlock{blockBase: blockBase{enabled: true}, name: name, log: log}
}

func (b *recordingBlock) Update() {
	b.log.WriteString(b.name)
}

func (b *recordingBlock) SetBlockSize(n int) {
	b.sizes = append(b.sizes, n)
}

func TestGraphOrder(t *testing.T) {
	var log strings.Builder
	a := newRecordingBlock("A", &log)
	b := newRecordingBlock("B", &log)
	c := newRecordingBlock("C", &log)
	g, err := NewGraph(64)
	expectNoError(t, err)

	stage, err := g.Add(a, nil)
	expectNoError(t, err)
	if stage != 0 {
		t.Errorf("expected stage 0, but got %d", stage)
	}
	_, err = g.Add(c, a)
	expectNoError(t, err)
	stage, err = g.Add(b, a)
	expectNoError(t, err)
	if stage != 1 {
		t.Errorf("expected B right after A, but got stage %d", stage)
	}
	for i := 0; i < 3; i++ {
		g.Update()
	}
	if log.String() != "ABCABCABC" {
		t.Errorf("unexpected update order %q", log.String())
	}
	if g.Len() != 3 || g.Stage(c) != 2 {
		t.Errorf("unexpected graph shape: len %d, stage of C %d", g.Len(), g.Stage(c))
	}
	if len(a.sizes) != 1 || a.sizes[0] != 64 {
		t.Errorf("expected A sized on add, but got %v", a.sizes)
	}
}

func TestGraphAddRejects(t *testing.T) {
	var log strings.Builder
	a := newRecordingBlock("A", &log)
	b := newRecordingBlock("B", &log)
	g, err := NewGraph(64)
	expectNoError(t, err)
	_, err = g.Add(a, nil)
	expectNoError(t, err)
	if _, err := g.Add(a, nil); err == nil {
		t.Errorf("expected error for a duplicate block")
	}
	if _, err := g.Add(b, newRecordingBlock("X", &log)); err == nil {
		t.Errorf("expected error for an unknown upstream")
	}
	if _, err := g.Add(nil, a); err == nil {
		t.Errorf("expected error for nil")
	}
	if g.Len() != 1 {
		t.Errorf("expected rejected blocks not to be added")
	}
}

func TestGraphSetBlockSize(t *testing.T) {
	var log strings.Builder
	a := newRecordingBlock("A", &log)
	b := newRecordingBlock("B", &log)
	g, err := NewGraph(128)
	expectNoError(t, err)
	_, err = g.Add(a, nil)
	expectNoError(t, err)
	_, err = g.Add(b, a)
	expectNoError(t, err)

	for _, n := range []int{0, -1, MaxBlockSize + 1} {
		if err := g.SetBlockSize(n); !errors.Is(err, ErrInvalidBlockSize) {
			t.Errorf("%d: expected ErrInvalidBlockSize, but got %v", n, err)
		}
	}
	if len(a.sizes) != 1 || len(b.sizes) != 1 || g.BlockSize() != 128 {
		t.Fatalf("expected no block touched by an invalid size")
	}
	expectNoError(t, g.SetBlockSize(32))
	if a.sizes[1] != 32 || b.sizes[1] != 32 || g.BlockSize() != 32 {
		t.Errorf("expected every block resized, but got %v %v", a.sizes, b.sizes)
	}
	if _, err := NewGraph(0); !errors.Is(err, ErrInvalidBlockSize) {
		t.Errorf("expected ErrInvalidBlockSize, but got %v", err)
	}
}
