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
	"sync"
	"testing"
	"time"

	"hz.tools/rf"
	"hz.tools/rx/source"
	"hz.tools/sdr"
)

type fakeStream struct {
	mu     sync.Mutex
	closed bool
	rate   uint
}

func (s *fakeStream) SampleFormat() sdr.SampleFormat { return sdr.SampleFormatC64 }
func (s *fakeStream) SampleRate() uint               { return s.rate }

func (s *fakeStream) Read(samples sdr.Samples) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	buf, ok := samples.(sdr.SamplesC64)
	if !ok {
		return 0, sdr.ErrSampleFormatMismatch
	}
	time.Sleep(time.Millisecond)
	n := len(buf)
	if n > 256 {
		n = 256
	}
	for i := range buf[:n] {
		buf[i] = complex(0.5, -0.25)
	}
	return n, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	freq    rf.Hz
	rate    uint
	agc     bool
	closed  int
	streams int

	// StartRx closes entered, then takes startDelay.
	entered    chan struct{}
	startDelay time.Duration
}

func (d *fakeDevice) SetCenterFrequency(f rf.Hz) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freq = f
	return nil
}

func (d *fakeDevice) SetSampleRate(rate uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rate = rate
	return nil
}

func (d *fakeDevice) SetAutomaticGain(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agc = on
	return nil
}

func (d *fakeDevice) GetGainStages() (sdr.GainStages, error) { return nil, nil }

func (d *fakeDevice) SetGain(sdr.GainStage, float32) error { return nil }

func (d *fakeDevice) StartRx() (sdr.ReadCloser, error) {
	if d.entered != nil {
		close(d.entered)
	}
	time.Sleep(d.startDelay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams++
	return &fakeStream{rate: d.rate}, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func TestReceiverCapture(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	r := source.NewReceiver(source.Config{
		Logger:       quiet,
		BufferLength: 8192,
		OpenReceiver: func(int) (source.Device, error) { return dev, nil },
	})

	if err := r.Open("", 0); err != nil {
		t.Fatal(err)
	}
	if r.SampleRate() != 2000000 || dev.rate != 2000000 {
		t.Fatalf("rate = %d", r.SampleRate())
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	iq := make([]complex128, 100)
	n := 0
	for deadline := time.Now().Add(5 * time.Second); n == 0 && time.Now().Before(deadline); {
		n, _ = r.Read(iq)
		time.Sleep(time.Millisecond)
	}
	if n == 0 {
		t.Fatal("no samples captured")
	}
	for _, v := range iq[:n] {
		if v != complex(0.5, -0.25) {
			t.Fatalf("sample %v", v)
		}
	}

	if err := r.SetCenterFrequency(7 * rf.MHz); err != nil {
		t.Fatal(err)
	}
	if err := r.SetGain(30); err != nil {
		t.Fatal(err)
	}
	dev.mu.Lock()
	if dev.freq != 7*rf.MHz || dev.agc {
		t.Errorf("freq=%v agc=%t", dev.freq, dev.agc)
	}
	dev.mu.Unlock()

	for i := 0; i < 2; i++ {
		if err := r.Stop(); err != nil {
			t.Fatal(err)
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if dev.closed != 1 {
		t.Fatalf("device closed %d times", dev.closed)
	}
}

func TestReceiverTuneWhileStarting(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{entered: make(chan struct{}), startDelay: 500 * time.Millisecond}
	r := source.NewReceiver(source.Config{
		Logger:       quiet,
		OpenReceiver: func(int) (source.Device, error) { return dev, nil },
	})
	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	started := make(chan error, 1)
	go func() { started <- r.Start() }()
	<-dev.entered

	tuned := make(chan error, 1)
	go func() { tuned <- r.SetCenterFrequency(433 * rf.MHz) }()
	select {
	case err := <-tuned:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(250 * time.Millisecond):
		t.Fatal("tuning waited on StartRx")
	}
	if err := <-started; err != nil {
		t.Fatal(err)
	}
}

func TestReceiverRemembersGain(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	r := source.NewReceiver(source.Config{
		Logger:       quiet,
		OpenReceiver: func(int) (source.Device, error) { return dev, nil },
	})

	if err := r.SetGain(20); err != nil {
		t.Fatal(err)
	}
	if err := r.Open("0", 0); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dev.mu.Lock()
	agc := dev.agc
	dev.mu.Unlock()
	if agc {
		t.Fatal("manual gain set before Open was lost")
	}

	if err := r.SetGain(source.AutoGain); err != nil {
		t.Fatal(err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.agc {
		t.Fatal("AGC not enabled")
	}
}

func TestReceiverWithoutDevice(t *testing.T) {
	t.Parallel()
	r := source.NewReceiver(source.Config{Logger: quiet})
	if err := r.Open("0", 0); !errors.Is(err, source.ErrNoDevice) {
		t.Fatalf("Open = %v, want ErrNoDevice", err)
	}
	if err := r.Start(); !errors.Is(err, source.ErrNotOpen) {
		t.Fatalf("Start = %v, want ErrNotOpen", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

// vim: foldmethod=marker
