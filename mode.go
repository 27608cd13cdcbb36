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
	"errors"
	"strings"

	"hz.tools/rf"
)

// Mode is the analog demodulation applied to the tuned signal.
type Mode int

const (
	// ModeAM is envelope detection of an amplitude modulated carrier.
	ModeAM Mode = iota

	// ModeNFM is narrowband FM, as used by voice repeaters and the like.
	ModeNFM

	// ModeWFM is wideband (broadcast) FM, with de-emphasis.
	ModeWFM

	// ModeLSB is the lower single sideband.
	ModeLSB

	// ModeUSB is the upper single sideband.
	ModeUSB

	// ModeOff will produce silence, while still consuming IQ data at the
	// same rate as any other mode.
	ModeOff
)

var (
	// ErrUnknownMode will be returned when parsing a mode name that isn't
	// one of the known modes.
	ErrUnknownMode = errors.New("rx: unknown demodulation mode")

	modeNames = map[Mode]string{
		ModeAM:  "AM",
		ModeNFM: "NFM",
		ModeWFM: "WFM",
		ModeLSB: "LSB",
		ModeUSB: "USB",
		ModeOff: "OFF",
	}

	// defaultBandwidths are the filter widths a mode starts out with when
	// it's selected.
	defaultBandwidths = map[Mode]rf.Hz{
		ModeAM:  8 * rf.KHz,
		ModeNFM: 12 * rf.KHz,
		ModeWFM: 180 * rf.KHz,
		ModeLSB: 3 * rf.KHz,
		ModeUSB: 3 * rf.KHz,
	}
)

// String returns the short, upper case name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseMode will turn a mode name (case insensitive) back into a Mode.
func ParseMode(name string) (Mode, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for mode, modeName := range modeNames {
		if modeName == name {
			return mode, nil
		}
	}
	return ModeOff, ErrUnknownMode
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, ErrUnknownMode
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// DefaultBandwidth returns the channel filter width the mode is usually
// listened with. The second return is false for ModeOff, which has no
// preference.
func (m Mode) DefaultBandwidth() (rf.Hz, bool) {
	bw, ok := defaultBandwidths[m]
	return bw, ok
}

// TuningOffset returns the frequency offset the Demodulator should be asked
// to shift by, given the offset of the dialed frequency from the center of
// the IQ stream.
//
// Sideband selection happens entirely here: the upper sideband is tuned half
// a bandwidth up, and the lower sideband half a bandwidth down, so that the
// channel filter only passes one side of the carrier.
func TuningOffset(mode Mode, offset, bandwidth rf.Hz) rf.Hz {
	switch mode {
	case ModeUSB:
		return offset + bandwidth/2
	case ModeLSB:
		return offset - bandwidth/2
	default:
		return offset
	}
}

// vim: foldmethod=marker
