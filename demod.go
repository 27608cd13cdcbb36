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

package rx

import (
	"math"
	"math/cmplx"

	"hz.tools/rf"
	"hz.tools/rx/internal/filter"
)

const tau = math.Pi * 2

var (
	// AudioCorner is the corner of the low-pass filter applied to the
	// demodulated audio of every mode other than WFM, relative to the
	// output sample rate.
	AudioCorner rf.Hz = 16 * rf.KHz

	// DeemphasisCorner is the corner of the WFM de-emphasis filter, relative
	// to the input sample rate.
	DeemphasisCorner rf.Hz = 2.1 * rf.KHz
)

const (
	wfmGain  = 4.0
	wfmLimit = 0.8
	nfmGain  = 0.5
	ssbGain  = 2.0
)

// DemodulatorConfig will define the rates the Demodulator converts between.
type DemodulatorConfig struct {
	// InputRate is the sample rate of the IQ data fed to Process.
	InputRate uint

	// OutputRate is the sample rate of the audio coming out of Process.
	OutputRate uint
}

// Demodulator turns blocks of IQ samples into blocks of audio. All filter
// and oscillator state is carried from one call of Process to the next, so
// a stream may be fed in arbitrarily sized chunks.
//
// A Demodulator is tied to its input and output rates; when either changes,
// build a new one.
type Demodulator struct {
	config     DemodulatorConfig
	decimation int

	// phase of the tuning oscillator at the start of the next block, in
	// [0, 2π).
	phase float64

	channel  filter.ComplexLowPass
	audio    filter.LowPass
	deemph   filter.LowPass
	amDC     filter.DCBlocker
	wfmDC    filter.DCBlocker
	previous complex128

	wfmSum   float64
	wfmCount int
}

// NewDemodulator will create a Demodulator with fresh state.
func NewDemodulator(cfg DemodulatorConfig) *Demodulator {
	decimation := 1
	if cfg.OutputRate > 0 && cfg.InputRate > cfg.OutputRate {
		decimation = int(cfg.InputRate / cfg.OutputRate)
	}

	return &Demodulator{
		config:     cfg,
		decimation: decimation,
		previous:   complex(1, 0),
		audio: filter.LowPass{
			Alpha: filter.Alpha(float64(AudioCorner), float64(cfg.OutputRate)),
		},
		deemph: filter.LowPass{
			Alpha: filter.Alpha(float64(DeemphasisCorner), float64(cfg.InputRate)),
		},
	}
}

// Config returns the rates the Demodulator was built for.
func (d *Demodulator) Config() DemodulatorConfig {
	return d.config
}

// Decimation returns how many input samples go into each audio sample.
func (d *Demodulator) Decimation() int {
	return d.decimation
}

// Process will shift the IQ block by -offset, filter it down to bandwidth,
// and demodulate it using mode. Roughly one audio sample is produced for
// every Decimation() IQ samples.
//
// For every mode except WFM the decimation count starts over with each
// call; samples left over at the end of a block that don't fill a whole
// decimation group are dropped.
func (d *Demodulator) Process(iq []complex128, offset, bandwidth rf.Hz, mode Mode) []float32 {
	out := make([]float32, 0, len(iq)/d.decimation+1)

	inputRate := float64(d.config.InputRate)
	var step float64
	if inputRate > 0 {
		step = -tau * float64(offset) / inputRate
	}
	d.channel.Alpha = filter.Alpha(float64(bandwidth)/2, inputRate)

	var (
		sum   complex128
		count int
	)

	for i, sample := range iq {
		sample *= cmplx.Rect(1, d.phase+step*float64(i))
		filtered := d.channel.Filter(sample)

		if mode == ModeWFM {
			if v, ok := d.wideband(filtered); ok {
				out = append(out, v)
			}
			continue
		}

		sum += filtered
		count++
		if count < d.decimation {
			continue
		}
		avg := sum / complex(float64(count), 0)
		sum, count = 0, 0

		if mode == ModeOff {
			out = append(out, 0)
			continue
		}
		out = append(out, d.narrowband(avg, mode))
	}

	d.phase = math.Mod(d.phase+step*float64(len(iq)), tau)
	if d.phase < 0 {
		d.phase += tau
	}
	return out
}

// wideband runs the FM discriminator at the full input rate, and returns an
// audio sample once a whole decimation group has been averaged.
func (d *Demodulator) wideband(sample complex128) (float32, bool) {
	delta := cmplx.Phase(sample * cmplx.Conj(d.previous))
	d.previous = sample

	d.wfmSum += d.deemph.Filter(delta)
	d.wfmCount++
	if d.wfmCount < d.decimation {
		return 0, false
	}

	v := d.wfmSum / float64(d.wfmCount) * wfmGain
	d.wfmSum, d.wfmCount = 0, 0

	v = d.wfmDC.Filter(v)
	return float32(filter.Clamp(v, wfmLimit)), true
}

// narrowband demodulates one decimated sample for AM, NFM and the
// sidebands, and runs it through the audio filter.
func (d *Demodulator) narrowband(sample complex128, mode Mode) float32 {
	var v float64
	switch mode {
	case ModeAM:
		v = d.amDC.Filter(cmplx.Abs(sample))
	case ModeNFM:
		v = cmplx.Phase(sample*cmplx.Conj(d.previous)) * nfmGain
		d.previous = sample
	case ModeLSB, ModeUSB:
		v = real(sample) * ssbGain
	}

	if math.IsNaN(d.audio.State) {
		d.audio.State = 0
	}
	d.audio.State = filter.Clamp(d.audio.Filter(v), 1)
	return float32(d.audio.State)
}

// vim: foldmethod=marker
