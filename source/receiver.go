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
	"log"
	"sync"
	"sync/atomic"

	"hz.tools/rf"
	"hz.tools/rx/ring"
	"hz.tools/sdr"
	"hz.tools/sdr/stream"
)

// Device is the subset of an hz.tools/sdr Receiver that the Receiver source
// uses.
type Device interface {
	SetCenterFrequency(rf.Hz) error
	SetSampleRate(uint) error
	SetAutomaticGain(bool) error
	GetGainStages() (sdr.GainStages, error)
	SetGain(sdr.GainStage, float32) error
	StartRx() (sdr.ReadCloser, error)
	Close() error
}

// ReceiverOpener opens a Device by index.
type ReceiverOpener func(index int) (Device, error)

// Receiver captures from any hz.tools/sdr Receiver. A goroutine reads from
// the device's stream into a ring buffer that Read drains.
type Receiver struct {
	logger *log.Logger
	open   ReceiverOpener
	buf    *ring.Buffer[complex128]

	// hw guards dev, rx and the tuning state. Reads from rx happen without
	// it.
	hw     sync.Mutex
	dev    Device
	rx     sdr.ReadCloser
	rate   uint
	center rf.Hz
	gain   Gain

	// life serializes Start and Stop.
	life    sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewReceiver returns an unopened Receiver.
func NewReceiver(cfg Config) *Receiver {
	return &Receiver{
		logger: cfg.logger(),
		open:   cfg.OpenReceiver,
		buf:    cfg.ring(),
		center: 100 * rf.MHz,
		gain:   AutoGain,
	}
}

// Open the device with the given index. The last frequency and gain set
// are applied to it.
func (r *Receiver) Open(id string, rate uint) error {
	r.Close()

	if r.open == nil {
		return ErrNoDevice
	}
	if rate == 0 {
		rate = DefaultRate(KindReceiver)
	}

	r.hw.Lock()
	center, gain := r.center, r.gain
	r.hw.Unlock()

	dev, err := r.open(deviceIndex(id))
	if err != nil {
		return fmt.Errorf("receiver: open %q: %w", id, err)
	}

	err = func() error {
		if err := dev.SetSampleRate(rate); err != nil {
			return err
		}
		if err := dev.SetCenterFrequency(center); err != nil {
			return err
		}
		return applyGain(dev, gain)
	}()
	if err != nil {
		dev.Close()
		return fmt.Errorf("receiver: configure %q: %w", id, err)
	}

	r.hw.Lock()
	defer r.hw.Unlock()
	r.dev = dev
	r.rate = rate
	return nil
}

// Start streaming from the device. StartRx runs without the hw lock, so
// tuning isn't held up by a slow driver.
func (r *Receiver) Start() error {
	r.life.Lock()
	defer r.life.Unlock()

	r.hw.Lock()
	dev := r.dev
	if dev == nil {
		r.hw.Unlock()
		return ErrNotOpen
	}
	if !r.running.CompareAndSwap(false, true) {
		r.hw.Unlock()
		return nil
	}
	r.hw.Unlock()

	rx, err := dev.StartRx()
	if err != nil {
		r.running.Store(false)
		return err
	}
	reader, err := stream.ConvertReader(rx, sdr.SampleFormatC64)
	if err != nil {
		r.running.Store(false)
		rx.Close()
		return err
	}

	r.hw.Lock()
	r.rx = rx
	r.hw.Unlock()

	r.wg.Add(1)
	go r.capture(reader)
	return nil
}

func (r *Receiver) capture(reader sdr.Reader) {
	defer r.wg.Done()

	buf := make(sdr.SamplesC64, 16*1024)
	iq := make([]complex128, len(buf))
	for r.running.Load() {
		n, err := reader.Read(buf)
		for i := range buf[:n] {
			iq[i] = complex128(buf[i])
		}
		if n > 0 && r.running.Load() {
			r.buf.Push(iq[:n])
		}
		if err != nil {
			if r.running.Load() && !errors.Is(err, io.EOF) {
				r.logger.Printf("[receiver] capture stopped: %v", err)
			}
			return
		}
	}
}

// Stop closes the device stream and waits for the capture goroutine.
func (r *Receiver) Stop() error {
	r.life.Lock()
	defer r.life.Unlock()

	if !r.running.CompareAndSwap(true, false) {
		return nil
	}

	r.hw.Lock()
	rx := r.rx
	r.rx = nil
	r.hw.Unlock()

	var err error
	if rx != nil {
		err = rx.Close()
	}
	r.wg.Wait()
	return err
}

// Close stops capture and releases the device.
func (r *Receiver) Close() error {
	stopErr := r.Stop()

	r.hw.Lock()
	defer r.hw.Unlock()
	r.buf.Clear()
	if r.dev == nil {
		return stopErr
	}
	err := r.dev.Close()
	r.dev = nil
	if err != nil {
		return err
	}
	return stopErr
}

// Read implements Source.
func (r *Receiver) Read(iq []complex128) (int, error) {
	return r.buf.Pop(iq), nil
}

// SetCenterFrequency implements Tuner.
func (r *Receiver) SetCenterFrequency(freq rf.Hz) error {
	r.hw.Lock()
	defer r.hw.Unlock()
	r.center = freq
	if r.dev == nil {
		return nil
	}
	return r.dev.SetCenterFrequency(freq)
}

// CenterFrequency implements Centered.
func (r *Receiver) CenterFrequency() rf.Hz {
	r.hw.Lock()
	defer r.hw.Unlock()
	return r.center
}

// SetGain turns on the device's AGC for AutoGain, otherwise applies the
// requested dB to the first gain stage. The gain is kept for the next Open.
func (r *Receiver) SetGain(gain Gain) error {
	r.hw.Lock()
	defer r.hw.Unlock()
	r.gain = gain
	if r.dev == nil {
		return nil
	}
	return applyGain(r.dev, gain)
}

func applyGain(dev Device, gain Gain) error {
	if gain == AutoGain {
		return dev.SetAutomaticGain(true)
	}
	if err := dev.SetAutomaticGain(false); err != nil {
		return err
	}
	stages, err := dev.GetGainStages()
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		return nil
	}
	return dev.SetGain(stages[0], float32(gain))
}

// SampleRate implements Source.
func (r *Receiver) SampleRate() uint {
	r.hw.Lock()
	defer r.hw.Unlock()
	return r.rate
}

// Kind implements Source.
func (r *Receiver) Kind() Kind { return KindReceiver }

// IsHardware implements Source.
func (r *Receiver) IsHardware() bool { return true }

// IsSeekable implements Source.
func (r *Receiver) IsSeekable() bool { return false }

// vim: foldmethod=marker
