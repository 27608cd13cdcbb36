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

package source_test

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"hz.tools/rf"
	"hz.tools/rx/source"
)

var quiet = log.New(io.Discard, "", 0)

type fakeRTL struct {
	mu       sync.Mutex
	rate     int
	freq     int
	manual   bool
	gain     int
	closed   int
	stopped  bool
	reading  bool
	asyncs   int
	cancels  int
	failRate bool

	enterDelay time.Duration
}

func (d *fakeRTL) SetSampleRate(rate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRate {
		return errors.New("bad rate")
	}
	d.rate = rate
	return nil
}

func (d *fakeRTL) SetCenterFreq(freq int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freq = freq
	return nil
}

func (d *fakeRTL) SetTunerGainMode(manual bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manual = manual
	return nil
}

func (d *fakeRTL) SetTunerGain(gain int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = gain
	return nil
}

func (d *fakeRTL) GetTunerGains() ([]int, error) {
	return []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207, 229, 254, 280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439, 445, 480, 496}, nil
}

func (d *fakeRTL) ResetBuffer() error {
	return nil
}

func (d *fakeRTL) cancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// ReadAsync and CancelAsync behave like librtlsdr: a cancel only lands
// while an async read is running.
func (d *fakeRTL) ReadAsync(cb func([]byte)) error {
	d.mu.Lock()
	d.asyncs++
	delay := d.enterDelay
	d.mu.Unlock()

	time.Sleep(delay)
	d.mu.Lock()
	d.reading = true
	d.stopped = false
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.reading = false
		d.mu.Unlock()
	}()

	// 255 maps to +1, 0 maps to -1.
	buf := make([]byte, 512)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = 255
		}
	}
	for !d.cancelled() {
		cb(buf)
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (d *fakeRTL) CancelAsync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels++
	if !d.reading {
		return errors.New("rtlsdr: not reading")
	}
	d.stopped = true
	return nil
}

func (d *fakeRTL) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func newRTL(dev *fakeRTL) *source.RTL {
	return source.NewRTL(source.Config{
		Logger:       quiet,
		BufferLength: 4096,
		OpenRTL: func(int) (source.RTLDevice, error) {
			return dev, nil
		},
	})
}

func TestRTLCapture(t *testing.T) {
	t.Parallel()
	dev := &fakeRTL{}
	r := newRTL(dev)

	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	if dev.rate != 2048000 || r.SampleRate() != 2048000 {
		t.Fatalf("rate = %d / %d", dev.rate, r.SampleRate())
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	iq := make([]complex128, 64)
	deadline := time.Now().Add(5 * time.Second)
	n := 0
	for n == 0 && time.Now().Before(deadline) {
		var err error
		if n, err = r.Read(iq); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if n == 0 {
		t.Fatal("no samples captured")
	}
	for _, v := range iq[:n] {
		if v != complex(1, -1) {
			t.Fatalf("sample %v, want (1-1i)", v)
		}
	}

	for i := 0; i < 2; i++ {
		if err := r.Stop(); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if dev.closed != 1 {
		t.Fatalf("device closed %d times", dev.closed)
	}
	if n, _ := r.Read(iq); n != 0 {
		t.Fatalf("Read after Close = %d", n)
	}
}

func TestRTLStopBeforeReading(t *testing.T) {
	t.Parallel()
	dev := &fakeRTL{enterDelay: 20 * time.Millisecond}
	r := newRTL(dev)
	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < 3; i++ {
		if err := r.Start(); err != nil {
			t.Fatal(err)
		}

		stopped := make(chan error, 1)
		go func() { stopped <- r.Stop() }()
		select {
		case err := <-stopped:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Stop never returned")
		}
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.reading {
		t.Fatal("async read still running")
	}
	if dev.cancels <= dev.asyncs {
		t.Fatalf("%d cancels for %d reads; early cancels were not retried", dev.cancels, dev.asyncs)
	}
}

func TestRTLRestart(t *testing.T) {
	t.Parallel()
	dev := &fakeRTL{}
	r := newRTL(dev)
	if err := r.Open("0", 1024000); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < 3; i++ {
		if err := r.Start(); err != nil {
			t.Fatal(err)
		}
		if err := r.Start(); err != nil {
			t.Fatal(err)
		}
		if err := r.Stop(); err != nil {
			t.Fatal(err)
		}
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.asyncs > 3 {
		t.Fatalf("%d async reads for 3 starts", dev.asyncs)
	}
}

func TestRTLGain(t *testing.T) {
	t.Parallel()
	dev := &fakeRTL{}
	r := newRTL(dev)
	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, tc := range []struct {
		gain source.Gain
		want int
	}{
		{20, 197},
		{0, 0},
		{50, 496},
		{30, 297},
	} {
		if err := r.SetGain(tc.gain); err != nil {
			t.Fatal(err)
		}
		if !dev.manual || dev.gain != tc.want {
			t.Errorf("SetGain(%v): manual=%t gain=%d, want %d", tc.gain, dev.manual, dev.gain, tc.want)
		}
	}

	if err := r.SetGain(source.AutoGain); err != nil {
		t.Fatal(err)
	}
	if dev.manual {
		t.Fatal("AutoGain left manual gain mode on")
	}
}

func TestRTLTune(t *testing.T) {
	t.Parallel()
	dev := &fakeRTL{}
	r := newRTL(dev)

	// Tuning before Open is remembered.
	if err := r.SetCenterFrequency(144 * rf.MHz); err != nil {
		t.Fatal(err)
	}
	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if dev.freq != 144000000 {
		t.Fatalf("freq = %d", dev.freq)
	}

	r.Start()
	if err := r.SetCenterFrequency(433920 * rf.KHz); err != nil {
		t.Fatal(err)
	}
	if dev.freq != 433920000 || r.CenterFrequency() != 433920*rf.KHz {
		t.Fatalf("freq = %d", dev.freq)
	}
}

func TestRTLOpenFailure(t *testing.T) {
	t.Parallel()

	r := source.NewRTL(source.Config{
		Logger: quiet,
		OpenRTL: func(int) (source.RTLDevice, error) {
			return nil, source.ErrNoDevice
		},
	})
	if err := r.Open("0", 0); !errors.Is(err, source.ErrNoDevice) {
		t.Fatalf("Open = %v", err)
	}
	if err := r.Start(); !errors.Is(err, source.ErrNotOpen) {
		t.Fatalf("Start = %v", err)
	}

	dev := &fakeRTL{failRate: true}
	r = newRTL(dev)
	if err := r.Open("0", 0); err == nil {
		t.Fatal("Open succeeded with a failing device")
	}
	if dev.closed != 1 {
		t.Fatalf("device closed %d times after failed Open", dev.closed)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

// vim: foldmethod=marker
