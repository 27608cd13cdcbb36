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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"hz.tools/rfcap"
	"hz.tools/sdr"
	"hz.tools/sdr/stream"
)

// Capture plays back an rfcap recording, converted to complex samples. Like
// File, playback loops forever; unlike File, it can't seek.
type Capture struct {
	mu sync.Mutex

	path   string
	file   *os.File
	reader sdr.Reader
	active bool
	rate   uint

	scratch sdr.SamplesC64
}

// NewCapture returns an unopened Capture source.
func NewCapture() *Capture {
	return &Capture{}
}

// Open the rfcap file at path. rate is ignored.
func (c *Capture) Open(path string, rate uint) error {
	c.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	if err := c.reopen(); err != nil {
		c.path = ""
		return err
	}
	c.rate = c.reader.SampleRate()
	return nil
}

// reopen (re)starts the recording from the top. c.mu must be held.
func (c *Capture) reopen() error {
	if c.file != nil {
		c.file.Close()
		c.file, c.reader = nil, nil
	}

	fh, err := os.Open(c.path)
	if err != nil {
		return err
	}
	reader, _, err := rfcap.Reader(fh)
	if err != nil {
		fh.Close()
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	reader, err = stream.ConvertReader(reader, sdr.SampleFormatC64)
	if err != nil {
		fh.Close()
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	c.file, c.reader = fh, reader
	return nil
}

// Start enables reads.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return ErrNotOpen
	}
	c.active = true
	return nil
}

// Stop pauses reads.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return nil
}

// Close the recording.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.reader = nil, nil
	return err
}

// Read implements Source. Hitting the end of the recording reopens it, and
// the short read is returned as-is.
func (c *Capture) Read(iq []complex128) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		return 0, ErrNotOpen
	}
	if !c.active {
		return 0, nil
	}

	if cap(c.scratch) < len(iq) {
		c.scratch = make(sdr.SamplesC64, len(iq))
	}
	buf := c.scratch[:len(iq)]

	n, err := sdr.ReadFull(c.reader, buf)
	for i := range buf[:n] {
		iq[i] = complex128(buf[i])
	}

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, c.reopen()
	default:
		return n, err
	}
}

// SampleRate implements Source.
func (c *Capture) SampleRate() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Kind implements Source.
func (c *Capture) Kind() Kind { return KindCapture }

// IsHardware implements Source.
func (c *Capture) IsHardware() bool { return false }

// IsSeekable implements Source.
func (c *Capture) IsSeekable() bool { return false }

// vim: foldmethod=marker
