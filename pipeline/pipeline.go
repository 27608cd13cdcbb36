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
	"context"
	"fmt"
	"log"
	"time"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/audio"
	"hz.tools/rx/record"
	"hz.tools/rx/source"
	"hz.tools/rx/spectrum"
)

// Config tunes the Pipeline's pacing. Zero values pick the defaults.
type Config struct {
	// AudioRate is the rate audio is demodulated to. It should match the
	// Sink.
	AudioRate uint

	Analyzer spectrum.AnalyzerConfig

	// ChunksPerSecond sets how much IQ is read per pass, as a fraction of
	// the source's sample rate.
	ChunksPerSecond uint

	// MaxChunk bounds the samples read per pass.
	MaxChunk int

	// Backpressure is how much queued audio stops a file source from being
	// read any further ahead.
	Backpressure time.Duration

	IdleDelay         time.Duration
	PausedDelay       time.Duration
	StarvedDelay      time.Duration
	BackpressureDelay time.Duration

	Logger  *log.Logger
	Metrics *Metrics

	// Now is used to name recordings.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.AudioRate == 0 {
		c.AudioRate = 48000
	}
	if c.Analyzer.Size == 0 {
		c.Analyzer = spectrum.DefaultAnalyzerConfig
	}
	if c.ChunksPerSecond == 0 {
		c.ChunksPerSecond = 60
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = 200000
	}
	if c.Backpressure == 0 {
		c.Backpressure = 200 * time.Millisecond
	}
	if c.IdleDelay == 0 {
		c.IdleDelay = 10 * time.Millisecond
	}
	if c.PausedDelay == 0 {
		c.PausedDelay = 50 * time.Millisecond
	}
	if c.StarvedDelay == 0 {
		c.StarvedDelay = 10 * time.Millisecond
	}
	if c.BackpressureDelay == 0 {
		c.BackpressureDelay = 5 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Pipeline is the receiver's processing loop. Run must only be called
// once, and everything else about a Pipeline is owned by the goroutine
// running it.
type Pipeline struct {
	cfg     Config
	logger  *log.Logger
	metrics *Metrics

	slot  *Slot
	state *State
	sink  *audio.Sink

	analyzer *spectrum.Analyzer
	demod    *rx.Demodulator
	iq       []complex128
	gen      uint64

	rec       *record.Recorder
	recTarget record.Target
}

// New creates a Pipeline reading from slot, steered by state, and playing
// into sink.
func New(slot *Slot, state *State, sink *audio.Sink, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		slot:     slot,
		state:    state,
		sink:     sink,
		analyzer: spectrum.NewAnalyzer(cfg.Analyzer),
	}
}

// Run processes until ctx is done, and returns its error. Any recording in
// progress is finished first.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.stopRecording()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay := p.step()
		if delay <= 0 {
			continue
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// step makes one pass, and returns how long to wait before the next.
func (p *Pipeline) step() time.Duration {
	src, gen := p.slot.Current()
	if gen != p.gen {
		p.gen = gen
		p.sourceChanged(src)
	}

	p.syncRecording(src)
	if src == nil {
		return p.cfg.IdleDelay
	}

	ctl := p.state.Controls()
	if !ctl.Playing {
		return p.cfg.PausedDelay
	}

	p.metrics.AudioBuffered.Set(float64(p.sink.Buffered()))
	if !src.IsHardware() && p.sink.Buffered() > p.backpressureSamples() {
		p.metrics.BackpressureWaits.Inc()
		return p.cfg.BackpressureDelay
	}

	rate := src.SampleRate()
	if rate == 0 {
		return p.cfg.IdleDelay
	}
	if p.demod == nil || p.demod.Config().InputRate != rate {
		p.demod = rx.NewDemodulator(rx.DemodulatorConfig{
			InputRate:  rate,
			OutputRate: p.cfg.AudioRate,
		})
	}

	chunk := int(rate / p.cfg.ChunksPerSecond)
	if chunk > p.cfg.MaxChunk {
		chunk = p.cfg.MaxChunk
	}
	if chunk < 1 {
		chunk = 1
	}
	if len(p.iq) < chunk {
		p.iq = make([]complex128, chunk)
	}

	n, err := src.Read(p.iq[:chunk])
	if err != nil || n == 0 {
		// Sources report being mid-swap or between loops this way; it
		// isn't worth more than a retry.
		p.metrics.EmptyReads.Inc()
		return p.cfg.StarvedDelay
	}
	iq := p.iq[:n]
	p.metrics.IQSamples.Add(float64(n))

	p.recordIQ(iq)

	offset := rf.Hz((ctl.TunePercent - 0.5) * float64(rate))
	offset = rx.TuningOffset(ctl.Mode, offset, ctl.Bandwidth)
	out := p.demod.Process(iq, offset, ctl.Bandwidth, ctl.Mode)

	p.recordAudio(out)

	gain := ctl.AudioGain()
	for i := range out {
		out[i] *= gain
	}
	p.sink.Push(out)
	p.metrics.AudioSamples.Add(float64(len(out)))

	row := p.analyzer.Process(iq, ctl.MinDB, ctl.MaxDB)
	p.state.Publish(p.analyzer.Spectrum(), row)

	if seeker, ok := src.(source.Seeker); ok {
		p.state.SetProgress(seeker.Progress())
	}
	return 0
}

func (p *Pipeline) backpressureSamples() int {
	return int(p.cfg.Backpressure * time.Duration(p.cfg.AudioRate) / time.Second)
}

// sourceChanged drops state that belonged to the previous source.
func (p *Pipeline) sourceChanged(src source.Source) {
	p.demod = nil
	p.analyzer.Reset()
	if p.rec != nil && p.recTarget == record.TargetBaseband {
		// The rate and center frequency are baked into the file.
		p.stopRecording()
	}
}

// syncRecording opens or closes a Recorder to match the State.
func (p *Pipeline) syncRecording(src source.Source) {
	req := p.state.Recording()

	if p.rec != nil && (!req.Enabled || req.Target != p.recTarget) {
		p.stopRecording()
	}
	if !req.Enabled || p.rec != nil {
		return
	}

	var (
		rec *record.Recorder
		err error
	)
	switch req.Target {
	case record.TargetAudio:
		rec, err = record.Audio(req.Folder, p.cfg.AudioRate, p.cfg.Now())
	case record.TargetBaseband:
		if src == nil || src.SampleRate() == 0 {
			// Wait for a source to record.
			return
		}
		var center rf.Hz
		if c, ok := src.(source.Centered); ok {
			center = c.CenterFrequency()
		}
		rec, err = record.Baseband(req.Folder, src.SampleRate(), center, p.cfg.Now())
	default:
		err = fmt.Errorf("unknown target %v", req.Target)
	}

	if err != nil {
		p.logger.Printf("[pipeline] recording failed: %v", err)
		req.Enabled = false
		p.state.SetRecording(req)
		p.state.SetRecordStatus(fmt.Sprintf("Recording failed: %v", err))
		return
	}

	p.rec = rec
	p.recTarget = req.Target
	p.state.SetRecordStatus(fmt.Sprintf("Recording %s to %s", req.Target, rec.Path()))
}

func (p *Pipeline) stopRecording() {
	if p.rec == nil {
		return
	}
	rec := p.rec
	p.rec = nil
	if err := rec.Close(); err != nil {
		p.logger.Printf("[pipeline] closing %s: %v", rec.Path(), err)
		p.state.SetRecordStatus(fmt.Sprintf("Recording failed: %v", err))
		return
	}
	p.state.SetRecordStatus(fmt.Sprintf("Saved %s (%s)", rec.Path(), rec.Duration().Round(time.Millisecond)))
}

func (p *Pipeline) recordIQ(iq []complex128) {
	if p.rec == nil || p.recTarget != record.TargetBaseband {
		return
	}
	if err := p.rec.WriteIQ(iq); err != nil {
		p.recordError(err)
	}
}

func (p *Pipeline) recordAudio(samples []float32) {
	if p.rec == nil || p.recTarget != record.TargetAudio {
		return
	}
	if err := p.rec.WriteAudio(samples); err != nil {
		p.recordError(err)
	}
}

func (p *Pipeline) recordError(err error) {
	p.logger.Printf("[pipeline] recording failed: %v", err)
	if closeErr := p.rec.Close(); closeErr != nil {
		p.logger.Printf("[pipeline] closing %s: %v", p.rec.Path(), closeErr)
	}
	p.rec = nil
	req := p.state.Recording()
	req.Enabled = false
	p.state.SetRecording(req)
	p.state.SetRecordStatus(fmt.Sprintf("Recording failed: %v", err))
}

// vim: foldmethod=marker
