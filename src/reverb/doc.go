// Package reverb implements the Freeverb room model: eight parallel damped
// comb filters per channel feeding four series allpass stages.
//
// Every delay line lives in one slab allocated by Model; the filter
// primitives only hold views into it, so processing never allocates.
// Parameters are plain setters and are expected to be called from the
// goroutine that drives processing, between blocks.
package reverb
