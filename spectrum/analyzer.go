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

package spectrum

import (
	"image/color"
	"math"
	"math/cmplx"
)

// Heatmap maps v, clamped to [0, 1], through a blue, cyan, yellow, red
// gradient. Alpha is always opaque.
func Heatmap(v float64) color.RGBA {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}

	c := color.RGBA{A: 255}
	switch {
	case v < 0.25:
		c.B = uint8(v * 4 * 255)
	case v < 0.5:
		c.B = 255
		c.G = uint8((v - 0.25) * 4 * 255)
	case v < 0.75:
		c.R = uint8((v - 0.5) * 4 * 255)
		c.G = 255
		c.B = 255 - c.R
	default:
		c.R = 255
		c.G = uint8((1 - v) * 4 * 255)
	}
	return c
}

// AnalyzerConfig controls the size of the transform and the waterfall.
type AnalyzerConfig struct {
	// Size is the number of points in the FFT. It must be a power of two.
	Size int

	// Width is the number of pixels in each waterfall row.
	Width int

	// Smoothing is the weight given to the newest spectrum when it is
	// blended into the running one. 0.3 if unset.
	Smoothing float64

	// Floor is the dB value the running spectrum starts at.
	Floor float64
}

// DefaultAnalyzerConfig is a 1024 point FFT drawn into a 900 pixel row.
var DefaultAnalyzerConfig = AnalyzerConfig{
	Size:      1024,
	Width:     900,
	Smoothing: 0.3,
	Floor:     -100,
}

// Analyzer windows and transforms the leading block of each chunk it's
// handed, keeping an exponentially smoothed spectrum and producing one
// waterfall row per chunk.
//
// An Analyzer is not safe for concurrent use.
type Analyzer struct {
	cfg      AnalyzerConfig
	window   []float64
	scratch  []complex128
	smoothed []float64
}

// NewAnalyzer allocates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Size <= 0 {
		cfg.Size = DefaultAnalyzerConfig.Size
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultAnalyzerConfig.Width
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = DefaultAnalyzerConfig.Smoothing
	}

	smoothed := make([]float64, cfg.Size)
	for i := range smoothed {
		smoothed[i] = cfg.Floor
	}

	return &Analyzer{
		cfg:      cfg,
		window:   Window(cfg.Size),
		scratch:  make([]complex128, cfg.Size),
		smoothed: smoothed,
	}
}

// Config returns the settings in use, with defaults filled in.
func (a *Analyzer) Config() AnalyzerConfig {
	return a.cfg
}

// Process transforms the first Size samples of iq (zero padding a short
// chunk), folds the result into the smoothed spectrum, and returns an RGBA
// waterfall row with minDB mapped to the bottom of the gradient and maxDB to
// the top.
func (a *Analyzer) Process(iq []complex128, minDB, maxDB float64) []byte {
	n := a.cfg.Size
	for i := range a.scratch {
		if i < len(iq) {
			a.scratch[i] = iq[i] * complex(a.window[i], 0)
		} else {
			a.scratch[i] = 0
		}
	}
	FFT(a.scratch)

	span := maxDB - minDB
	if span == 0 {
		span = 1
	}

	row := make([]byte, a.cfg.Width*4)
	for x := 0; x < a.cfg.Width; x++ {
		bin := Shift(x*n/a.cfg.Width, n)
		db := Decibels(cmplx.Abs(a.scratch[bin]) / float64(n))
		c := Heatmap((db - minDB) / span)
		row[x*4] = c.R
		row[x*4+1] = c.G
		row[x*4+2] = c.B
		row[x*4+3] = c.A
	}

	alpha := a.cfg.Smoothing
	for i := range a.smoothed {
		db := Decibels(cmplx.Abs(a.scratch[Shift(i, n)]) / float64(n))
		a.smoothed[i] = a.smoothed[i]*(1-alpha) + db*alpha
	}

	return row
}

// Spectrum returns a copy of the smoothed spectrum in dB, re-centered so
// that DC sits at index Size/2.
func (a *Analyzer) Spectrum() []float64 {
	out := make([]float64, len(a.smoothed))
	copy(out, a.smoothed)
	return out
}

// Reset returns the smoothed spectrum to the floor.
func (a *Analyzer) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = a.cfg.Floor
	}
}

// vim: foldmethod=marker
