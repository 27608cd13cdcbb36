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

// Package source contains the producers of IQ samples: recorded files, and
// hardware tuners that capture on their own goroutine into a ring buffer.
//
// Exactly one Source is expected to be active at a time. A Source must be
// stopped and closed before another one that may share the same hardware is
// opened.
package source

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"hz.tools/rf"
	"hz.tools/rx/ring"
)

var (
	// ErrNotOpen is returned when a Source is used before Open, or after
	// Close.
	ErrNotOpen = errors.New("source: not open")

	// ErrNotStereo is returned when a WAV file does not have the two
	// channels needed to carry I and Q.
	ErrNotStereo = errors.New("source: wav file is not stereo")

	// ErrUnsupportedFormat is returned for files that can't be decoded.
	ErrUnsupportedFormat = errors.New("source: unsupported file format")

	// ErrNotSeekable is returned when seeking a live source.
	ErrNotSeekable = errors.New("source: not seekable")

	// ErrUnknownKind is returned by ParseKind and New.
	ErrUnknownKind = errors.New("source: unknown kind")

	// ErrNoDevice is returned when no hardware backend is available for a
	// Kind.
	ErrNoDevice = errors.New("source: no device")
)

// Source is a producer of complex baseband samples.
type Source interface {
	// Open binds the Source to a device index or file path. A rate of zero
	// picks the default for the device, or the native rate of a file. On
	// error the Source is left closed.
	Open(id string, rate uint) error

	// Start begins capture or playback.
	Start() error

	// Stop halts capture or playback. It's safe to call more than once.
	Stop() error

	// Close stops the Source and releases the device or file handle. It's
	// safe to call more than once.
	Close() error

	// Read copies up to len(iq) samples into iq. Hardware sources return
	// whatever is buffered, which may be nothing at all. A return of 0 with
	// a nil error is not an end of stream.
	Read(iq []complex128) (int, error)

	// SampleRate is the rate, in samples per second, that Read produces.
	SampleRate() uint

	Kind() Kind
	IsHardware() bool
	IsSeekable() bool
}

// Centered is implemented by Sources that know the RF frequency at the
// center of their passband.
type Centered interface {
	CenterFrequency() rf.Hz
}

// Tuner is implemented by hardware Sources. Both calls are safe to make
// whether or not capture is running.
type Tuner interface {
	Centered
	SetCenterFrequency(rf.Hz) error
	SetGain(Gain) error
}

// Seeker is implemented by Sources that can change their read position.
type Seeker interface {
	// Seek moves to the given fraction (0 to 1) of the recording.
	Seek(fraction float64) error

	// Progress returns the read position as a fraction of the recording.
	Progress() float64
}

// Gain is a requested RF gain in dB, or AutoGain.
type Gain int

// AutoGain asks the hardware to run its own gain control.
const AutoGain Gain = -1

// String implements fmt.Stringer.
func (g Gain) String() string {
	if g == AutoGain {
		return "auto"
	}
	return fmt.Sprintf("%ddB", int(g))
}

// Kind names a family of Sources.
type Kind string

// Known Kinds.
const (
	KindFile     Kind = "file"
	KindCapture  Kind = "capture"
	KindRTL      Kind = "rtlsdr"
	KindReceiver Kind = "receiver"
)

// Kinds lists every Kind New can build.
var Kinds = []Kind{KindFile, KindCapture, KindRTL, KindReceiver}

// ParseKind looks up a Kind by name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Rate is one selectable sample rate for a Kind.
type Rate struct {
	Rate  uint
	Label string
}

// Rates returns the sample rates a Kind supports. A Rate of zero means
// "whatever the file says".
func Rates(kind Kind) []Rate {
	switch kind {
	case KindFile, KindCapture:
		return []Rate{{0, "File Default"}}
	case KindRTL:
		return rateTable(1024000, 1400000, 1800000, 2048000, 2400000, 3200000)
	case KindReceiver:
		return rateTable(2000000, 4000000, 6000000, 8000000, 10000000)
	}
	return nil
}

// DefaultRate returns the rate used when Open is passed zero.
func DefaultRate(kind Kind) uint {
	switch kind {
	case KindRTL:
		return 2048000
	case KindReceiver:
		return 2000000
	}
	return 0
}

func rateTable(rates ...uint) []Rate {
	out := make([]Rate, len(rates))
	for i, r := range rates {
		label := strconv.FormatFloat(float64(r)/1e6, 'f', -1, 64)
		if !strings.Contains(label, ".") {
			label += ".0"
		}
		out[i] = Rate{Rate: r, Label: label + " MSps"}
	}
	return out
}

// Config holds what New needs to build a Source.
type Config struct {
	// Logger for warnings. nil means log.Default().
	Logger *log.Logger

	// BufferLength is the capacity, in samples, of a hardware Source's ring
	// buffer. Zero means 1<<20, about half a second at 2 MSps.
	BufferLength int

	// OnOverflow is told how many samples a hardware Source dropped
	// whenever its ring buffer overflows. It must not block.
	OnOverflow func(dropped int)

	// OpenRTL opens an RTL-SDR by index. nil uses librtlsdr.
	OpenRTL RTLOpener

	// OpenReceiver opens a generic receiver by index. If nil, the
	// receiver Kind fails to open with ErrNoDevice.
	OpenReceiver ReceiverOpener
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c Config) ring() *ring.Buffer[complex128] {
	n := c.BufferLength
	if n <= 0 {
		n = 1 << 20
	}
	opts := []ring.Option{ring.WithLogger(c.logger())}
	if c.OnOverflow != nil {
		opts = append(opts, ring.WithOverflowFunc(c.OnOverflow))
	}
	return ring.New[complex128](n, opts...)
}

// New builds an unopened Source of the given Kind.
func New(kind Kind, cfg Config) (Source, error) {
	switch kind {
	case KindFile:
		return NewFile(), nil
	case KindCapture:
		return NewCapture(), nil
	case KindRTL:
		return NewRTL(cfg), nil
	case KindReceiver:
		return NewReceiver(cfg), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// deviceIndex parses a device id, defaulting to the first device.
func deviceIndex(id string) int {
	idx, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || idx < 0 {
		return 0
	}
	return idx
}

// vim: foldmethod=marker
