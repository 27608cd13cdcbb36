// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package filter contains the small stateful single-pole filters used by the
// demodulator. Every filter here holds its own state and is meant to be fed
// one sample at a time, across as many blocks as the stream has.
package filter

import (
	"math"
)

const tau = math.Pi * 2

// Alpha returns the smoothing coefficient of a one-pole low-pass filter with
// the provided corner frequency at the provided sample rate.
//
// The coefficient is clamped to 1 (pass-through). A zero or negative sample
// rate disables the filter entirely by returning 0.
func Alpha(corner, sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	alpha := tau * corner / sampleRate
	if alpha > 1 {
		return 1
	}
	if alpha < 0 {
		return 0
	}
	return alpha
}

// LowPass is a real valued one-pole low-pass filter.
type LowPass struct {
	Alpha float64
	State float64
}

// Filter will push v through the filter, returning the new state.
func (lp *LowPass) Filter(v float64) float64 {
	lp.State += lp.Alpha * (v - lp.State)
	return lp.State
}

// ComplexLowPass is a one-pole low-pass filter over IQ samples.
type ComplexLowPass struct {
	Alpha float64
	State complex128
}

// Filter will push v through the filter, returning the new state.
func (lp *ComplexLowPass) Filter(v complex128) complex128 {
	lp.State += complex(lp.Alpha, 0) * (v - lp.State)
	return lp.State
}

// DCBlocker tracks the slow running average of a signal so that it can be
// removed from it.
type DCBlocker struct {
	State float64
}

// Filter returns v minus the running average, after folding v into it.
func (dc *DCBlocker) Filter(v float64) float64 {
	dc.State = 0.995*dc.State + 0.005*v
	return v - dc.State
}

// Clamp limits v to [-limit, limit].
func Clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// vim: foldmethod=marker
