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

// Package record writes demodulated audio or raw baseband IQ to 16 bit PCM
// WAV files.
package record

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"hz.tools/rf"
)

// Target picks which point in the pipeline is recorded.
type Target int

const (
	// TargetAudio records demodulated audio, before volume is applied.
	TargetAudio Target = iota

	// TargetBaseband records IQ samples as they come off the source.
	TargetBaseband
)

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t {
	case TargetAudio:
		return "audio"
	case TargetBaseband:
		return "baseband"
	}
	return fmt.Sprintf("Target(%d)", int(t))
}

// ParseTarget is the inverse of String.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "audio":
		return TargetAudio, nil
	case "baseband", "iq":
		return TargetBaseband, nil
	}
	return 0, fmt.Errorf("record: unknown target %q", s)
}

const stamp = "20060102_150405"

// Recorder is an open WAV file. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	path     string
	rate     uint
	channels int
	file     *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	frames   int
}

// Audio creates a mono recording in dir, named after now.
func Audio(dir string, rate uint, now time.Time) (*Recorder, error) {
	name := fmt.Sprintf("audio_%s.wav", now.Format(stamp))
	return create(filepath.Join(dir, name), rate, 1)
}

// Baseband creates a stereo IQ recording in dir. The center frequency is
// put in the file name, where the file source knows to look for it.
func Baseband(dir string, rate uint, center rf.Hz, now time.Time) (*Recorder, error) {
	name := fmt.Sprintf("baseband_%s_%dHz.wav", now.Format(stamp), uint64(center))
	return create(filepath.Join(dir, name), rate, 2)
}

func create(path string, rate uint, channels int) (*Recorder, error) {
	if rate == 0 {
		return nil, fmt.Errorf("record: %s: sample rate is zero", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		path:     path,
		rate:     rate,
		channels: channels,
		file:     f,
		enc:      wav.NewEncoder(f, int(rate), 16, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(rate)},
			SourceBitDepth: 16,
		},
	}, nil
}

// Path of the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Channels is 1 for audio and 2 for baseband.
func (r *Recorder) Channels() int {
	return r.channels
}

// Duration of audio written so far.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.frames) * time.Second / time.Duration(r.rate)
}

func pcm16(v float64) int {
	switch {
	case math.IsNaN(v):
		v = 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int(v * 32767)
}

// WriteAudio appends mono samples. It's an error on a baseband recording.
func (r *Recorder) WriteAudio(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels != 1 {
		return fmt.Errorf("record: %s is not an audio recording", r.path)
	}
	data := r.data(len(samples))
	for i, v := range samples {
		data[i] = pcm16(float64(v))
	}
	return r.flush(len(samples))
}

// WriteIQ appends I to the left channel and Q to the right. It's an error
// on an audio recording.
func (r *Recorder) WriteIQ(iq []complex128) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels != 2 {
		return fmt.Errorf("record: %s is not a baseband recording", r.path)
	}
	data := r.data(len(iq) * 2)
	for i, v := range iq {
		data[i*2] = pcm16(real(v))
		data[i*2+1] = pcm16(imag(v))
	}
	return r.flush(len(iq))
}

func (r *Recorder) data(n int) []int {
	if cap(r.buf.Data) < n {
		r.buf.Data = make([]int, n)
	}
	r.buf.Data = r.buf.Data[:n]
	return r.buf.Data
}

func (r *Recorder) flush(frames int) error {
	if r.enc == nil {
		return os.ErrClosed
	}
	if frames == 0 {
		return nil
	}
	if err := r.enc.Write(r.buf); err != nil {
		return err
	}
	r.frames += frames
	return nil
}

// Close finishes the WAV header and closes the file. Calling Close again
// is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	err := r.enc.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.enc, r.file = nil, nil
	return err
}

// vim: foldmethod=marker
