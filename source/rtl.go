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
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	gsdr "github.com/jpoirier/gortlsdr"

	"hz.tools/rf"
	"hz.tools/rx/ring"
)

// RTLDevice is the part of librtlsdr that RTL drives. Gains are in tenths
// of a dB, as the driver reports them.
type RTLDevice interface {
	SetSampleRate(rate int) error
	SetCenterFreq(freq int) error
	SetTunerGainMode(manual bool) error
	SetTunerGain(gain int) error
	GetTunerGains() ([]int, error)
	ResetBuffer() error

	// ReadAsync blocks, calling cb from the driver's thread with each
	// buffer of interleaved unsigned 8 bit I/Q, until CancelAsync.
	ReadAsync(cb func([]byte)) error
	CancelAsync() error
	Close() error
}

// RTLOpener opens the RTL-SDR at an index.
type RTLOpener func(index int) (RTLDevice, error)

type gortlDevice struct {
	*gsdr.Context
}

func (d gortlDevice) ReadAsync(cb func([]byte)) error {
	return d.Context.ReadAsync(cb, nil, 0, 0)
}

func openGortl(index int) (RTLDevice, error) {
	if gsdr.GetDeviceCount() == 0 {
		return nil, ErrNoDevice
	}
	dev, err := gsdr.Open(index)
	if err != nil {
		return nil, err
	}
	return gortlDevice{dev}, nil
}

// RTL captures from an RTL-SDR dongle. The driver's async read runs on its
// own goroutine and pushes into a ring buffer that Read drains.
type RTL struct {
	logger *log.Logger
	open   RTLOpener
	buf    *ring.Buffer[complex128]

	// hw guards dev and the tuning state, and is only held around short
	// control calls. ReadAsync runs without it.
	hw     sync.Mutex
	dev    RTLDevice
	gains  []int
	rate   uint
	center rf.Hz
	gain   Gain

	running atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}

	// only touched from the driver's callback
	scratch []complex128
}

// NewRTL returns an unopened RTL source.
func NewRTL(cfg Config) *RTL {
	opener := cfg.OpenRTL
	if opener == nil {
		opener = openGortl
	}
	return &RTL{
		logger: cfg.logger(),
		open:   opener,
		buf:    cfg.ring(),
		center: 100 * rf.MHz,
		gain:   AutoGain,
	}
}

// Open the dongle with the given index ("0" if id doesn't parse).
func (r *RTL) Open(id string, rate uint) error {
	r.Close()

	if rate == 0 {
		rate = DefaultRate(KindRTL)
	}

	dev, err := r.open(deviceIndex(id))
	if err != nil {
		return fmt.Errorf("rtl: open %q: %w", id, err)
	}

	err = func() error {
		if err := dev.SetSampleRate(int(rate)); err != nil {
			return err
		}
		if err := dev.SetCenterFreq(int(r.center)); err != nil {
			return err
		}
		if err := dev.SetTunerGainMode(false); err != nil {
			return err
		}
		return dev.ResetBuffer()
	}()
	if err != nil {
		dev.Close()
		return fmt.Errorf("rtl: configure %q: %w", id, err)
	}

	gains, err := dev.GetTunerGains()
	if err != nil {
		r.logger.Printf("[rtl] no tuner gain table: %v", err)
	}

	r.hw.Lock()
	defer r.hw.Unlock()
	r.dev = dev
	r.gains = gains
	r.rate = rate
	r.gain = AutoGain
	return nil
}

func (r *RTL) callback(raw []byte) {
	if !r.running.Load() {
		return
	}
	n := len(raw) / 2
	if cap(r.scratch) < n {
		r.scratch = make([]complex128, n)
	}
	iq := r.scratch[:n]
	for i := range iq {
		iq[i] = complex(
			(float64(raw[i*2])-127.5)/127.5,
			(float64(raw[i*2+1])-127.5)/127.5,
		)
	}
	r.buf.Push(iq)
}

// Start the async capture goroutine.
func (r *RTL) Start() error {
	r.hw.Lock()
	defer r.hw.Unlock()

	if r.dev == nil {
		return ErrNotOpen
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.dev.ResetBuffer(); err != nil {
		r.running.Store(false)
		return err
	}

	dev := r.dev
	done := make(chan struct{})
	r.done = done
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		if err := dev.ReadAsync(r.callback); err != nil {
			r.logger.Printf("[rtl] async read stopped: %v", err)
		}
	}()
	return nil
}

// cancelRetry is how often Stop repeats CancelAsync. librtlsdr drops a
// cancel that arrives before the async read has started.
const cancelRetry = 5 * time.Millisecond

// Stop cancels the async read and waits for the capture goroutine to exit,
// so no callback runs after Stop returns.
func (r *RTL) Stop() error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}

	r.hw.Lock()
	dev, done := r.dev, r.done
	r.done = nil
	r.hw.Unlock()

	if dev != nil && done != nil {
		ticker := time.NewTicker(cancelRetry)
		defer ticker.Stop()
		for joined := false; !joined; {
			r.hw.Lock()
			dev.CancelAsync()
			r.hw.Unlock()

			select {
			case <-done:
				joined = true
			case <-ticker.C:
			}
		}
	}

	r.wg.Wait()
	return nil
}

// Close stops capture and releases the dongle.
func (r *RTL) Close() error {
	stopErr := r.Stop()

	r.hw.Lock()
	defer r.hw.Unlock()
	r.buf.Clear()
	if r.dev == nil {
		return stopErr
	}
	err := r.dev.Close()
	r.dev = nil
	r.gains = nil
	if err != nil {
		return err
	}
	return stopErr
}

// Read implements Source.
func (r *RTL) Read(iq []complex128) (int, error) {
	return r.buf.Pop(iq), nil
}

// SetCenterFrequency retunes the dongle.
func (r *RTL) SetCenterFrequency(freq rf.Hz) error {
	r.hw.Lock()
	defer r.hw.Unlock()
	r.center = freq
	if r.dev == nil {
		return nil
	}
	return r.dev.SetCenterFreq(int(freq))
}

// CenterFrequency implements Centered.
func (r *RTL) CenterFrequency() rf.Hz {
	r.hw.Lock()
	defer r.hw.Unlock()
	return r.center
}

// SetGain switches to tuner AGC for AutoGain, or picks the entry in the
// tuner's gain table nearest to the requested dB.
func (r *RTL) SetGain(gain Gain) error {
	r.hw.Lock()
	defer r.hw.Unlock()
	r.gain = gain
	if r.dev == nil {
		return nil
	}
	if gain == AutoGain {
		return r.dev.SetTunerGainMode(false)
	}
	if err := r.dev.SetTunerGainMode(true); err != nil {
		return err
	}
	return r.dev.SetTunerGain(nearestGain(r.gains, int(gain)*10))
}

// nearestGain returns the entry in table closest to target, or target
// itself if the table is empty.
func nearestGain(table []int, target int) int {
	if len(table) == 0 {
		return target
	}
	best := table[0]
	for _, g := range table[1:] {
		if abs(g-target) < abs(best-target) {
			best = g
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SampleRate implements Source.
func (r *RTL) SampleRate() uint {
	r.hw.Lock()
	defer r.hw.Unlock()
	return r.rate
}

// Kind implements Source.
func (r *RTL) Kind() Kind { return KindRTL }

// IsHardware implements Source.
func (r *RTL) IsHardware() bool { return true }

// IsSeekable implements Source.
func (r *RTL) IsSeekable() bool { return false }

// vim: foldmethod=marker
