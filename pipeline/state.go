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

// Package pipeline runs the receiver: a single goroutine that reads IQ from
// whichever source is active, demodulates it into the audio sink, and
// publishes the spectrum for display, all steered through a shared State.
package pipeline

import (
	"sync"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/record"
	"hz.tools/rx/source"
)

// Controls are the knobs the display side turns and the pipeline reads.
type Controls struct {
	// TunePercent places the demodulator within the source's passband, 0
	// being the bottom edge, 0.5 the center, and 1 the top edge.
	TunePercent float64
	Bandwidth   rf.Hz
	Mode        rx.Mode
	Playing     bool
	Muted       bool
	Volume      float64
	Gain        source.Gain
	MinDB       float64
	MaxDB       float64
}

// DefaultControls are the Controls of a freshly started receiver.
var DefaultControls = Controls{
	TunePercent: 0.5,
	Bandwidth:   12 * rf.KHz,
	Mode:        rx.ModeNFM,
	Volume:      1,
	Gain:        source.AutoGain,
	MinDB:       -120,
	MaxDB:       0,
}

// AudioGain is the factor applied to demodulated audio, zero when muted.
func (c Controls) AudioGain() float32 {
	if c.Muted {
		return 0
	}
	return float32(c.Volume)
}

// SourceInfo describes the active source for display.
type SourceInfo struct {
	Kind            source.Kind
	Hardware        bool
	Seekable        bool
	SampleRate      uint
	CenterFrequency rf.Hz
	Progress        float64
}

// RecordRequest is what the display side wants recorded.
type RecordRequest struct {
	Enabled bool
	Target  record.Target
	Folder  string
}

// Snapshot is a consistent copy of everything in the State.
type Snapshot struct {
	Controls
	Source       SourceInfo
	Spectrum     []float64
	Record       RecordRequest
	RecordStatus string
}

// State is the one object shared between the pipeline goroutine and
// whatever is displaying and steering it. Every field is guarded by a single
// lock.
type State struct {
	mu sync.Mutex

	controls Controls
	source   SourceInfo
	record   RecordRequest
	status   string

	spectrum []float64
	row      []byte
	rowDirty bool
}

// NewState returns a State starting from controls.
func NewState(controls Controls) *State {
	return &State{controls: controls}
}

// Controls returns a copy of the current Controls.
func (s *State) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls
}

// Update applies fn to the Controls under the lock. fn must not block.
func (s *State) Update(fn func(*Controls)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.controls)
	s.controls.TunePercent = clamp(s.controls.TunePercent, 0, 1)
	if s.controls.Volume < 0 {
		s.controls.Volume = 0
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// SetTunePercent moves the demodulator within the passband.
func (s *State) SetTunePercent(pct float64) {
	s.Update(func(c *Controls) { c.TunePercent = pct })
}

// SetBandwidth sets the channel filter width.
func (s *State) SetBandwidth(bw rf.Hz) {
	s.Update(func(c *Controls) { c.Bandwidth = bw })
}

// SetMode changes the demodulation mode, and resets the bandwidth to the
// mode's usual width. ModeOff leaves the bandwidth alone.
func (s *State) SetMode(mode rx.Mode) {
	s.Update(func(c *Controls) {
		c.Mode = mode
		if bw, ok := mode.DefaultBandwidth(); ok {
			c.Bandwidth = bw
		}
	})
}

// SetRange sets the dB values at the bottom and top of the display.
func (s *State) SetRange(minDB, maxDB float64) {
	s.Update(func(c *Controls) {
		c.MinDB, c.MaxDB = minDB, maxDB
	})
}

// SetMuted silences the audio without pausing.
func (s *State) SetMuted(muted bool) {
	s.Update(func(c *Controls) { c.Muted = muted })
}

// SetVolume sets the linear audio gain.
func (s *State) SetVolume(volume float64) {
	s.Update(func(c *Controls) { c.Volume = volume })
}

// Publish stores a new smoothed spectrum and waterfall row and marks the
// row as unread.
func (s *State) Publish(spectrum []float64, row []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectrum = spectrum
	s.row = row
	s.rowDirty = true
}

// Spectrum returns the latest smoothed spectrum.
func (s *State) Spectrum() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.spectrum...)
}

// WaterfallRow returns the latest waterfall row if it hasn't been returned
// before.
func (s *State) WaterfallRow() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rowDirty {
		return nil, false
	}
	s.rowDirty = false
	return s.row, true
}

// ResetDisplay drops the spectrum and any unread waterfall row.
func (s *State) ResetDisplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectrum = nil
	s.row = nil
	s.rowDirty = false
}

// SetSource records what the active source is.
func (s *State) SetSource(info SourceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = info
}

// SetProgress updates the playback position of a file source.
func (s *State) SetProgress(progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source.Progress = progress
}

// SetCenterFrequency updates the center frequency shown for the source.
func (s *State) SetCenterFrequency(freq rf.Hz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source.CenterFrequency = freq
}

// Source returns what the active source is.
func (s *State) Source() SourceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetRecording asks the pipeline to start or stop recording.
func (s *State) SetRecording(req RecordRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = req
}

// Recording returns the current recording request.
func (s *State) Recording() RecordRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// SetRecordStatus publishes a line of text about the recording.
func (s *State) SetRecordStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Snapshot copies out the whole State at once.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Controls:     s.controls,
		Source:       s.source,
		Spectrum:     append([]float64(nil), s.spectrum...),
		Record:       s.record,
		RecordStatus: s.status,
	}
}

// vim: foldmethod=marker
