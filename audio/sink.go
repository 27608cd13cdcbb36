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

// Package audio queues demodulated audio and plays it out through one of
// several sound server backends. The backends all pull from a Sink at the
// device's own pace; the Sink fills any gap with silence.
package audio

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"hz.tools/rx/ring"
)

var (
	// ErrUnknownBackend is returned by ParseBackend and Open.
	ErrUnknownBackend = errors.New("audio: unknown backend")
)

// Sink is the queue between the demodulator and the audio device.
type Sink struct {
	rate uint
	buf  *ring.Buffer[float32]
}

// NewSink allocates a Sink holding up to two seconds of mono audio at
// rate.
func NewSink(rate uint, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{
		rate: rate,
		buf:  ring.New[float32](int(rate)*2, ring.WithLogger(logger)),
	}
}

// Rate of the audio in the Sink.
func (s *Sink) Rate() uint {
	return s.rate
}

// Push queues samples for playback. If the device has fallen more than the
// Sink's capacity behind, the oldest audio is dropped.
func (s *Sink) Push(samples []float32) {
	s.buf.Push(samples)
}

// Buffered returns the number of samples waiting to be played.
func (s *Sink) Buffered() int {
	return s.buf.Len()
}

// Clear drops everything queued.
func (s *Sink) Clear() {
	s.buf.Clear()
}

// Pull fills out with queued audio, padding with silence if there isn't
// enough, and returns how many real samples were copied.
func (s *Sink) Pull(out []float32) int {
	n := s.buf.Pop(out)
	clear(out[n:])
	return n
}

// Backend names an audio output implementation.
type Backend string

// Known Backends.
const (
	BackendPulse     Backend = "pulse"
	BackendPortAudio Backend = "portaudio"
	BackendOto       Backend = "oto"
	BackendNone      Backend = "none"
)

// ParseBackend looks up a Backend by name.
func ParseBackend(s string) (Backend, error) {
	for _, b := range []Backend{BackendPulse, BackendPortAudio, BackendOto, BackendNone} {
		if strings.EqualFold(string(b), s) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Output is a running audio device draining a Sink.
type Output interface {
	Close() error
}

// Config controls how an Output is opened.
type Config struct {
	// FramesPerBuffer is how many samples the device asks for at once.
	// Zero means 20ms worth.
	FramesPerBuffer int

	// Name is what the sound server shows for the stream.
	Name string

	Logger *log.Logger
}

func (c Config) frames(rate uint) int {
	if c.FramesPerBuffer > 0 {
		return c.FramesPerBuffer
	}
	return int(rate) / 50
}

func (c Config) name() string {
	if c.Name == "" {
		return "rx"
	}
	return c.Name
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

// Open starts playing sink through backend.
func Open(backend Backend, sink *Sink, cfg Config) (Output, error) {
	switch backend {
	case BackendPulse:
		return openPulse(sink, cfg)
	case BackendPortAudio:
		return openPortAudio(sink, cfg)
	case BackendOto:
		return openOto(sink, cfg)
	case BackendNone:
		return openDiscard(sink, cfg), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// vim: foldmethod=marker
