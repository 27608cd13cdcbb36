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
	"hz.tools/rf"
	"hz.tools/sdr"
)

// Reader will allow for the reading of demodulated audio samples from
// an IQ stream.
type Reader interface {
	Read([]float32) (int, error)
}

// ReaderConfig will define how an IQ stream is turned into audio by
// Demodulate.
type ReaderConfig struct {
	// Mode is the demodulation to apply.
	Mode Mode

	// Offset is the distance of the signal from the center of the IQ data.
	Offset rf.Hz

	// Bandwidth is the width of the channel filter. If zero, the default
	// bandwidth of the Mode is used.
	Bandwidth rf.Hz

	// OutputRate is the audio sample rate to produce.
	OutputRate uint
}

// AudioReader reads demodulated audio out of an IQ stream.
type AudioReader struct {
	reader sdr.Reader
	config ReaderConfig
	demod  *Demodulator
	iq     sdr.SamplesC64
	block  []complex128
}

// SampleRate will return the *audio* sample rate.
func (a *AudioReader) SampleRate() uint {
	return a.config.OutputRate
}

// Read will (partially) fill the buffer with audio samples.
func (a *AudioReader) Read(audio []float32) (int, error) {
	want := len(audio) * a.demod.Decimation()
	if cap(a.iq) < want {
		a.iq = make(sdr.SamplesC64, want)
		a.block = make([]complex128, want)
	}
	iq := a.iq[:want]

	i, err := sdr.ReadFull(a.reader, iq)
	if err != nil {
		return 0, err
	}

	block := a.block[:i]
	for j := range block {
		block[j] = complex128(iq[j])
	}

	offset := TuningOffset(a.config.Mode, a.config.Offset, a.config.Bandwidth)
	return copy(audio, a.demod.Process(block, offset, a.config.Bandwidth, a.config.Mode)), nil
}

// Demodulate will create a new AudioReader, to read audio from an IQ
// stream.
func Demodulate(reader sdr.Reader, cfg ReaderConfig) (*AudioReader, error) {
	switch reader.SampleFormat() {
	case sdr.SampleFormatC64:
	default:
		return nil, sdr.ErrSampleFormatMismatch
	}

	if cfg.Bandwidth == 0 {
		cfg.Bandwidth, _ = cfg.Mode.DefaultBandwidth()
	}

	return &AudioReader{
		reader: reader,
		config: cfg,
		demod: NewDemodulator(DemodulatorConfig{
			InputRate:  reader.SampleRate(),
			OutputRate: cfg.OutputRate,
		}),
	}, nil
}

// vim: foldmethod=marker
