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
	"fmt"
	"log"
	"sync"
	"time"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/audio"
	"hz.tools/rx/source"
)

var (
	// ErrNoSource is returned when an operation needs an active source and
	// there isn't one.
	ErrNoSource = errors.New("pipeline: no active source")

	// ErrOutOfPassband is returned when tuning a source that can't retune
	// to a frequency outside what it's already receiving.
	ErrOutOfPassband = errors.New("pipeline: frequency is outside the passband")
)

// RadioConfig configures a Radio.
type RadioConfig struct {
	// Source is handed to source.New for every source selected.
	Source source.Config

	// Debounce is how long tuning has to settle before hardware is
	// retuned. Zero means 150ms.
	Debounce time.Duration

	// CenterFrequency is where hardware is tuned when first opened.
	CenterFrequency rf.Hz

	Logger  *log.Logger
	Metrics *Metrics
}

// Radio is the control side of the receiver: it picks the source, starts
// and stops it, and turns a dialed frequency into either a move within the
// passband or a hardware retune.
type Radio struct {
	slot    *Slot
	state   *State
	sink    *audio.Sink
	cfg     RadioConfig
	logger  *log.Logger
	metrics *Metrics

	// ctl serializes source selection against play and pause.
	ctl sync.Mutex

	// mu guards the VFO.
	mu      sync.Mutex
	center  rf.Hz
	dial    rf.Hz
	sticky  bool
	pending rf.Hz
	retune  *time.Timer

	// pendingGen is the slot generation the pending retune was meant for.
	pendingGen uint64
}

// NewRadio creates a Radio driving slot, state and sink.
func NewRadio(slot *Slot, state *State, sink *audio.Sink, cfg RadioConfig) *Radio {
	if cfg.Debounce == 0 {
		cfg.Debounce = 150 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.CenterFrequency == 0 {
		cfg.CenterFrequency = 100 * rf.MHz
	}
	return &Radio{
		slot:    slot,
		state:   state,
		sink:    sink,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		center:  cfg.CenterFrequency,
		dial:    cfg.CenterFrequency,
	}
}

// SelectSource replaces the active source with a new one of kind, opened
// with id (a device index or file path) at rate (0 for the default). The
// old source is fully shut down first. Whatever happens, playback ends up
// paused and the audio queue and display are cleared; if the new source
// fails to open, no source is left active.
func (r *Radio) SelectSource(kind source.Kind, id string, rate uint) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.retune != nil {
		r.retune.Stop()
		r.retune = nil
	}
	r.mu.Unlock()

	gain := r.state.Controls().Gain
	var info SourceInfo
	err := r.slot.Replace(func() (source.Source, error) {
		src, err := source.New(kind, r.cfg.Source)
		if err != nil {
			return nil, err
		}
		if err := src.Open(id, rate); err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if tuner, ok := src.(source.Tuner); ok {
			if err := tuner.SetCenterFrequency(r.dial); err != nil {
				src.Close()
				return nil, err
			}
			if err := tuner.SetGain(gain); err != nil {
				r.logger.Printf("[radio] setting gain %s: %v", gain, err)
			}
			r.center = r.dial
		} else if c, ok := src.(source.Centered); ok {
			r.center = c.CenterFrequency()
			r.dial = r.center
		}

		info = SourceInfo{
			Kind:            src.Kind(),
			Hardware:        src.IsHardware(),
			Seekable:        src.IsSeekable(),
			SampleRate:      src.SampleRate(),
			CenterFrequency: r.center,
		}
		return src, nil
	})
	r.metrics.SourceSwaps.Inc()

	r.state.Update(func(c *Controls) {
		c.Playing = false
		c.TunePercent = 0.5
	})
	r.sink.Clear()
	r.state.ResetDisplay()
	r.state.SetSource(info)

	if err != nil {
		r.logger.Printf("[radio] opening %s %q: %v", kind, id, err)
		return fmt.Errorf("pipeline: select %s: %w", kind, err)
	}
	return nil
}

// SetPlaying starts or stops the active source.
func (r *Radio) SetPlaying(play bool) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	src, _ := r.slot.Current()
	if src == nil {
		r.state.Update(func(c *Controls) { c.Playing = false })
		if play {
			return ErrNoSource
		}
		return nil
	}

	if !play {
		r.state.Update(func(c *Controls) { c.Playing = false })
		return src.Stop()
	}
	if err := src.Start(); err != nil {
		r.state.Update(func(c *Controls) { c.Playing = false })
		return err
	}
	r.state.Update(func(c *Controls) { c.Playing = true })
	return nil
}

// SetMode selects the demodulator, resetting the bandwidth to suit it.
func (r *Radio) SetMode(mode rx.Mode) {
	r.state.SetMode(mode)
}

// SetGain sets the RF gain of a hardware source. It is remembered for the
// next hardware source selected, too.
func (r *Radio) SetGain(gain source.Gain) error {
	r.state.Update(func(c *Controls) { c.Gain = gain })
	src, _ := r.slot.Current()
	if tuner, ok := src.(source.Tuner); ok {
		return tuner.SetGain(gain)
	}
	return nil
}

// Seek moves a file source's playback position.
func (r *Radio) Seek(fraction float64) error {
	src, _ := r.slot.Current()
	if src == nil {
		return ErrNoSource
	}
	seeker, ok := src.(source.Seeker)
	if !ok {
		return source.ErrNotSeekable
	}
	if err := seeker.Seek(fraction); err != nil {
		return err
	}
	r.state.SetProgress(seeker.Progress())
	return nil
}

// Frequency returns the dialed frequency.
func (r *Radio) Frequency() rf.Hz {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dial
}

// CenterFrequency returns the frequency at the center of the passband.
func (r *Radio) CenterFrequency() rf.Hz {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.center
}

func (r *Radio) current() (source.Source, bool, uint) {
	src, _ := r.slot.Current()
	if src == nil {
		return nil, false, 0
	}
	return src, src.IsHardware(), src.SampleRate()
}

// TuneTo dials freq. Inside the passband only the demodulator moves. A
// hardware source is retuned, once the dial has been still for the
// debounce period, when freq is outside the passband or when the radio is
// keeping the signal centered.
func (r *Radio) TuneTo(freq rf.Hz) error {
	src, hardware, rate := r.current()
	if src == nil {
		return ErrNoSource
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if hardware && (r.sticky || !r.inPassband(freq, rate)) {
		r.dial = freq
		r.state.SetTunePercent(0.5)
		r.scheduleRetune(freq)
		return nil
	}
	if !r.inPassband(freq, rate) {
		return ErrOutOfPassband
	}
	r.dial = freq
	r.state.SetTunePercent(0.5 + float64(freq-r.center)/float64(rate))
	return nil
}

// TunePercent dials the frequency at a fraction of the way across the
// passband, as when clicking on the waterfall.
func (r *Radio) TunePercent(pct float64) error {
	src, hardware, rate := r.current()
	if src == nil {
		return ErrNoSource
	}
	pct = clamp(pct, 0, 1)

	r.mu.Lock()
	defer r.mu.Unlock()

	freq := r.center + rf.Hz((pct-0.5)*float64(rate))
	r.dial = freq
	if hardware && r.sticky {
		r.state.SetTunePercent(0.5)
		r.scheduleRetune(freq)
		return nil
	}
	r.state.SetTunePercent(pct)
	return nil
}

// SetSticky switches between moving the demodulator within the passband
// (the default) and keeping the passband centered on the dial.
func (r *Radio) SetSticky(sticky bool) {
	src, hardware, _ := r.current()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sticky = sticky
	if sticky && src != nil && hardware {
		r.state.SetTunePercent(0.5)
		r.scheduleRetune(r.dial)
	}
}

// Sticky reports whether the passband follows the dial.
func (r *Radio) Sticky() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sticky
}

func (r *Radio) inPassband(freq rf.Hz, rate uint) bool {
	half := rf.Hz(rate) / 2
	return freq >= r.center-half && freq <= r.center+half
}

// scheduleRetune restarts the debounce timer. r.mu must be held.
func (r *Radio) scheduleRetune(freq rf.Hz) {
	_, r.pendingGen = r.slot.Current()
	r.pending = freq
	if r.retune != nil {
		r.retune.Stop()
	}
	r.retune = time.AfterFunc(r.cfg.Debounce, r.applyRetune)
}

func (r *Radio) applyRetune() {
	r.mu.Lock()
	freq, want := r.pending, r.pendingGen
	r.retune = nil
	r.mu.Unlock()

	src, gen := r.slot.Current()
	if gen != want {
		// The source was replaced after the timer fired.
		return
	}
	tuner, ok := src.(source.Tuner)
	if !ok || !src.IsHardware() {
		return
	}
	if err := tuner.SetCenterFrequency(freq); err != nil {
		r.logger.Printf("[radio] retune to %v: %v", freq, err)
		return
	}

	r.mu.Lock()
	r.center = freq
	r.mu.Unlock()
	r.state.SetCenterFrequency(freq)
}

// Close shuts down the active source.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.retune != nil {
		r.retune.Stop()
		r.retune = nil
	}
	r.mu.Unlock()

	r.ctl.Lock()
	defer r.ctl.Unlock()
	return r.slot.Close()
}

// vim: foldmethod=marker
