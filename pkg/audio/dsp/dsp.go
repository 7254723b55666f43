// Package dsp implements the front-end noise reduction and automatic gain
// control applied to captured audio before encoding. Neither the teacher nor
// any example repo in the retrieved pack vendors a voice NR/AGC library with
// a go.mod entry, so this stage is implemented directly on the standard
// library (see DESIGN.md).
package dsp

import "math"

// NoiseGate attenuates frames whose RMS energy falls below a learned noise
// floor plus a fixed threshold. The floor is tracked as a slowly-adapting
// minimum statistic. The gate is broadband and works on whole-frame RMS; it
// does no spectral analysis or spectral subtraction.
type NoiseGate struct {
	floor     float64
	threshold float64
	attack    float64
	release   float64
}

// NewNoiseGate creates a gate with the given threshold above the learned
// noise floor, in linear RMS units.
func NewNoiseGate(threshold float64) *NoiseGate {
	return &NoiseGate{
		threshold: threshold,
		attack:    0.1,
		release:   0.001,
	}
}

// Process attenuates in as needed and writes the result to out (which may
// alias in). out must have the same length as in.
func (g *NoiseGate) Process(in []int16, out []int16) {
	rms := rmsOf(in)

	if g.floor == 0 {
		g.floor = rms
	} else if rms < g.floor {
		g.floor += (rms - g.floor) * g.attack
	} else {
		g.floor += (rms - g.floor) * g.release
	}

	gain := 1.0
	if rms < g.floor+g.threshold {
		gain = 0.15
	}
	for i, s := range in {
		out[i] = clampInt16(float64(s) * gain)
	}
}

// AGC applies automatic gain control, tracking a target RMS level and
// smoothing gain changes to avoid audible pumping.
type AGC struct {
	targetRMS float64
	gain      float64
	maxGain   float64
	smoothing float64
}

// NewAGC creates an AGC targeting targetRMS (linear units, e.g. 4000 for
// 16-bit PCM) with a maximum applied gain of maxGain.
func NewAGC(targetRMS, maxGain float64) *AGC {
	return &AGC{
		targetRMS: targetRMS,
		gain:      1.0,
		maxGain:   maxGain,
		smoothing: 0.2,
	}
}

// Process applies the current gain to in, adapting the gain toward the
// target RMS for subsequent frames, and writes the result to out.
func (a *AGC) Process(in []int16, out []int16) {
	rms := rmsOf(in)
	if rms > 1 {
		desired := a.targetRMS / rms
		if desired > a.maxGain {
			desired = a.maxGain
		}
		a.gain += (desired - a.gain) * a.smoothing
	}
	for i, s := range in {
		out[i] = clampInt16(float64(s) * a.gain)
	}
}

func rmsOf(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
