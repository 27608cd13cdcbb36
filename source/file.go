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

package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/go-audio/wav"

	"hz.tools/rf"
)

// bytes in one frame of 16 bit stereo, one I/Q pair.
const frameSize = 4

var centerPattern = regexp.MustCompile(`_(\d+)Hz`)

// CenterFromName returns the center frequency encoded into a recording's
// file name as "_<digits>Hz", or 0 if there isn't one.
func CenterFromName(path string) rf.Hz {
	m := centerPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0
	}
	hz, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return rf.Hz(hz)
}

// File plays back IQ stored as 16 bit stereo PCM in a WAV file, with I in
// the left channel and Q in the right. Playback loops forever.
type File struct {
	mu sync.Mutex

	file   *os.File
	path   string
	active bool

	sampleRate uint
	center     rf.Hz

	// dataStart is the file offset of the first PCM byte, dataSize the
	// length of the PCM data, and pos the read offset into it.
	dataStart int64
	dataSize  int64
	pos       int64

	raw []byte
}

// NewFile returns an unopened File source.
func NewFile() *File {
	return &File{}
}

// Open the WAV file at path. The rate argument is ignored; files always
// play at the rate they were recorded at.
func (f *File) Open(path string, rate uint) error {
	f.Close()

	fh, err := os.Open(path)
	if err != nil {
		return err
	}

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		fh.Close()
		return fmt.Errorf("%w: %s is not a wav file", ErrUnsupportedFormat, path)
	}
	if dec.NumChans != 2 {
		fh.Close()
		return fmt.Errorf("%w: %s has %d channels", ErrNotStereo, path, dec.NumChans)
	}
	if dec.BitDepth != 16 || dec.WavAudioFormat != 1 {
		fh.Close()
		return fmt.Errorf("%w: %s is not 16 bit PCM", ErrUnsupportedFormat, path)
	}
	if err := dec.FwdToPCM(); err != nil {
		fh.Close()
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	start, err := fh.Seek(0, io.SeekCurrent)
	if err != nil {
		fh.Close()
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.file = fh
	f.path = path
	f.sampleRate = uint(dec.SampleRate)
	f.center = CenterFromName(path)
	f.dataStart = start
	f.dataSize = dec.PCMLen() - dec.PCMLen()%frameSize
	f.pos = 0
	return nil
}

// Start enables reads.
func (f *File) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ErrNotOpen
	}
	f.active = true
	return nil
}

// Stop pauses reads without losing the position.
func (f *File) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	return nil
}

// Close the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Read decodes up to len(iq) frames, wrapping back to the start of the data
// when the end is reached. A stopped File reads nothing.
func (f *File) Read(iq []complex128) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, ErrNotOpen
	}
	if !f.active || f.dataSize == 0 {
		return 0, nil
	}

	want := int64(len(iq)) * frameSize
	if remaining := f.dataSize - f.pos; want > remaining {
		want = remaining
	}
	if int64(cap(f.raw)) < want {
		f.raw = make([]byte, want)
	}
	raw := f.raw[:want]

	n, err := io.ReadFull(f.file, raw)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// The header claimed more data than the file has.
		f.dataSize = f.pos + int64(n) - int64(n)%frameSize
	default:
		return 0, err
	}

	frames := n / frameSize
	for i := 0; i < frames; i++ {
		re := int16(binary.LittleEndian.Uint16(raw[i*frameSize:]))
		im := int16(binary.LittleEndian.Uint16(raw[i*frameSize+2:]))
		iq[i] = complex(float64(re)/32768, float64(im)/32768)
	}
	f.pos += int64(frames) * frameSize

	if f.pos >= f.dataSize {
		if err := f.rewind(0); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func (f *File) rewind(offset int64) error {
	if _, err := f.file.Seek(f.dataStart+offset, io.SeekStart); err != nil {
		return err
	}
	f.pos = offset
	return nil
}

// Seek to a fraction of the recording. The position is rounded down to a
// whole I/Q frame.
func (f *File) Seek(fraction float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ErrNotOpen
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	target := int64(fraction * float64(f.dataSize))
	target -= target % frameSize
	if target >= f.dataSize {
		target = 0
	}
	return f.rewind(target)
}

// Progress returns how far into the recording the next Read will start.
func (f *File) Progress() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dataSize == 0 {
		return 0
	}
	return float64(f.pos) / float64(f.dataSize)
}

// SampleRate implements Source.
func (f *File) SampleRate() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampleRate
}

// CenterFrequency is parsed from the file name, if present.
func (f *File) CenterFrequency() rf.Hz {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.center
}

// Path of the open file.
func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// Kind implements Source.
func (f *File) Kind() Kind { return KindFile }

// IsHardware implements Source.
func (f *File) IsHardware() bool { return false }

// IsSeekable implements Source.
func (f *File) IsSeekable() bool { return true }

// vim: foldmethod=marker
