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

package pipeline

import (
	"errors"
	"io"
	"log"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"hz.tools/rf"
	"hz.tools/rx/source"
)

var quiet = log.New(io.Discard, "", 0)

// fakeSource is a tone generator that records what was done to it.
type fakeSource struct {
	mu sync.Mutex

	name     string
	rate     uint
	hardware bool
	tone     float64
	empty    bool
	failRead error

	started bool
	n       int
	reads   int
	center  rf.Hz
	gain    source.Gain

	events *[]string
}

func (f *fakeSource) log(event string) {
	if f.events != nil {
		*f.events = append(*f.events, f.name+" "+event)
	}
}

func (f *fakeSource) Open(id string, rate uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("open")
	return nil
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.log("start")
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.log("stop")
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("close")
	return nil
}

func (f *fakeSource) Read(iq []complex128) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead != nil {
		return 0, f.failRead
	}
	if f.empty {
		return 0, nil
	}
	for i := range iq {
		iq[i] = cmplx.Rect(1, 2*math.Pi*f.tone*float64(f.n)/float64(f.rate))
		f.n++
	}
	return len(iq), nil
}

func (f *fakeSource) SampleRate() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeSource) Kind() source.Kind {
	if f.hardware {
		return source.KindRTL
	}
	return source.KindFile
}

func (f *fakeSource) IsHardware() bool { return f.hardware }
func (f *fakeSource) IsSeekable() bool { return false }

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// fakeTuner is a hardware fakeSource.
type fakeTuner struct {
	fakeSource
}

func (f *fakeTuner) SetCenterFrequency(freq rf.Hz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.center = freq
	return nil
}

func (f *fakeTuner) CenterFrequency() rf.Hz {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.center
}

func (f *fakeTuner) SetGain(g source.Gain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gain = g
	return nil
}

var errBroken = errors.New("broken")

// fakeDongle is an RTL-SDR that tunes instantly and never produces samples.
type fakeDongle struct {
	mu      sync.Mutex
	freq    int
	tunes   int
	stopped bool
}

func (d *fakeDongle) SetSampleRate(int) error { return nil }
func (d *fakeDongle) SetTunerGainMode(bool) error { return nil }
func (d *fakeDongle) SetTunerGain(int) error { return nil }
func (d *fakeDongle) GetTunerGains() ([]int, error) { return []int{0, 197, 496}, nil }
func (d *fakeDongle) Close() error { return nil }

func (d *fakeDongle) SetCenterFreq(freq int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freq = freq
	d.tunes++
	return nil
}

func (d *fakeDongle) tuning() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freq, d.tunes
}

func (d *fakeDongle) ResetBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = false
	return nil
}

func (d *fakeDongle) ReadAsync(cb func([]byte)) error {
	for {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if stopped {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *fakeDongle) CancelAsync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// vim: foldmethod=marker
