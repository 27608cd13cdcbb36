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
	"math"
	"testing"
	"time"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/audio"
	"hz.tools/rx/record"
	"hz.tools/rx/source"
)

func baseband(t *testing.T) string {
	t.Helper()
	rec, err := record.Baseband(t.TempDir(), 48000, 145500*rf.KHz, when)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.WriteIQ(make([]complex128, 4800)); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	return rec.Path()
}

func newRadio(cfg RadioConfig) (*Radio, *State, *audio.Sink) {
	state := NewState(DefaultControls)
	sink := audio.NewSink(48000, quiet)
	cfg.Logger = quiet
	cfg.Source.Logger = quiet
	return NewRadio(&Slot{}, state, sink, cfg), state, sink
}

func TestSelectFile(t *testing.T) {
	t.Parallel()
	r, state, sink := newRadio(RadioConfig{})
	defer r.Close()

	sink.Push(make([]float32, 100))
	state.SetTunePercent(0.9)
	state.Publish([]float64{0}, []byte{0, 0, 0, 255})

	if err := r.SelectSource(source.KindFile, baseband(t), 0); err != nil {
		t.Fatal(err)
	}

	if r.CenterFrequency() != 145500*rf.KHz || r.Frequency() != 145500*rf.KHz {
		t.Fatalf("center %v, dial %v", r.CenterFrequency(), r.Frequency())
	}
	info := state.Source()
	if info.Kind != source.KindFile || info.Hardware || !info.Seekable || info.SampleRate != 48000 {
		t.Fatalf("SourceInfo = %+v", info)
	}
	c := state.Controls()
	if c.Playing || c.TunePercent != 0.5 {
		t.Fatalf("Controls = %+v", c)
	}
	if sink.Buffered() != 0 {
		t.Fatal("audio survived the swap")
	}
	if _, ok := state.WaterfallRow(); ok {
		t.Fatal("waterfall survived the swap")
	}
}

func TestPlayPause(t *testing.T) {
	t.Parallel()
	r, state, _ := newRadio(RadioConfig{})
	defer r.Close()

	if err := r.SetPlaying(true); !errors.Is(err, ErrNoSource) {
		t.Fatalf("SetPlaying with no source = %v", err)
	}

	if err := r.SelectSource(source.KindFile, baseband(t), 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetPlaying(true); err != nil {
		t.Fatal(err)
	}
	if !state.Controls().Playing {
		t.Fatal("not playing")
	}

	src, _ := r.slot.Current()
	iq := make([]complex128, 10)
	if n, err := src.Read(iq); n != 10 || err != nil {
		t.Fatalf("Read = %d, %v", n, err)
	}

	if err := r.SetPlaying(false); err != nil {
		t.Fatal(err)
	}
	if state.Controls().Playing {
		t.Fatal("still playing")
	}
	if n, _ := src.Read(iq); n != 0 {
		t.Fatalf("stopped source read %d samples", n)
	}
}

func TestTuneFile(t *testing.T) {
	t.Parallel()
	r, state, _ := newRadio(RadioConfig{})
	defer r.Close()
	if err := r.SelectSource(source.KindFile, baseband(t), 0); err != nil {
		t.Fatal(err)
	}

	if err := r.TuneTo(145512 * rf.KHz); err != nil {
		t.Fatal(err)
	}
	if pct := state.Controls().TunePercent; math.Abs(pct-0.75) > 1e-9 {
		t.Fatalf("TunePercent = %f", pct)
	}
	if r.Frequency() != 145512*rf.KHz {
		t.Fatalf("Frequency = %v", r.Frequency())
	}

	if err := r.TuneTo(146 * rf.MHz); !errors.Is(err, ErrOutOfPassband) {
		t.Fatalf("TuneTo out of band = %v", err)
	}
	if pct := state.Controls().TunePercent; math.Abs(pct-0.75) > 1e-9 {
		t.Fatalf("TunePercent moved to %f", pct)
	}

	if err := r.TunePercent(0.25); err != nil {
		t.Fatal(err)
	}
	if r.Frequency() != 145488*rf.KHz {
		t.Fatalf("Frequency = %v", r.Frequency())
	}
}

func TestSeek(t *testing.T) {
	t.Parallel()
	r, state, _ := newRadio(RadioConfig{})
	defer r.Close()

	if err := r.Seek(0.5); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Seek = %v", err)
	}
	if err := r.SelectSource(source.KindFile, baseband(t), 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Seek(0.5); err != nil {
		t.Fatal(err)
	}
	if p := state.Source().Progress; math.Abs(p-0.5) > 0.01 {
		t.Fatalf("Progress = %f", p)
	}
}

func TestSetMode(t *testing.T) {
	t.Parallel()
	r, state, _ := newRadio(RadioConfig{})
	r.SetMode(rx.ModeWFM)
	if c := state.Controls(); c.Mode != rx.ModeWFM || c.Bandwidth != 180*rf.KHz {
		t.Fatalf("Controls = %+v", c)
	}
}

func TestSelectFailure(t *testing.T) {
	t.Parallel()
	r, state, _ := newRadio(RadioConfig{
		Source: source.Config{
			OpenRTL: func(int) (source.RTLDevice, error) { return nil, errBroken },
		},
	})
	defer r.Close()

	if err := r.SelectSource(source.KindFile, baseband(t), 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetPlaying(true); err != nil {
		t.Fatal(err)
	}

	err := r.SelectSource(source.KindRTL, "0", 0)
	if !errors.Is(err, errBroken) {
		t.Fatalf("SelectSource = %v", err)
	}
	if src, _ := r.slot.Current(); src != nil {
		t.Fatal("a source is active after a failed open")
	}
	if state.Controls().Playing {
		t.Fatal("still playing")
	}
	if err := r.TuneTo(100 * rf.MHz); !errors.Is(err, ErrNoSource) {
		t.Fatalf("TuneTo = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHardwareRetune(t *testing.T) {
	t.Parallel()
	dongle := &fakeDongle{}
	r, state, _ := newRadio(RadioConfig{
		Debounce: 20 * time.Millisecond,
		Source: source.Config{
			OpenRTL: func(int) (source.RTLDevice, error) { return dongle, nil },
		},
	})
	defer r.Close()

	if err := r.SelectSource(source.KindRTL, "0", 0); err != nil {
		t.Fatal(err)
	}
	if freq, _ := dongle.tuning(); freq != 100000000 {
		t.Fatalf("dongle at %d", freq)
	}
	if info := state.Source(); !info.Hardware || info.SampleRate != 2048000 {
		t.Fatalf("SourceInfo = %+v", info)
	}

	// Inside the passband only the demodulator moves.
	_, tunes := dongle.tuning()
	if err := r.TuneTo(100512 * rf.KHz); err != nil {
		t.Fatal(err)
	}
	if pct := state.Controls().TunePercent; math.Abs(pct-0.75) > 1e-9 {
		t.Fatalf("TunePercent = %f", pct)
	}

	// Outside it, the dongle follows once the dial settles.
	for _, freq := range []rf.Hz{103 * rf.MHz, 104 * rf.MHz, 105 * rf.MHz} {
		if err := r.TuneTo(freq); err != nil {
			t.Fatal(err)
		}
	}
	if pct := state.Controls().TunePercent; pct != 0.5 {
		t.Fatalf("TunePercent = %f", pct)
	}
	waitFor(t, "retune", func() bool {
		return state.Source().CenterFrequency == 105*rf.MHz
	})
	freq, n := dongle.tuning()
	if freq != 105000000 || n != tunes+1 {
		t.Fatalf("dongle at %d after %d retunes", freq, n-tunes)
	}
	if r.CenterFrequency() != 105*rf.MHz {
		t.Fatalf("CenterFrequency = %v", r.CenterFrequency())
	}

	// Sticky tuning retunes even inside the passband.
	r.SetSticky(true)
	if err := r.TuneTo(105100 * rf.KHz); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sticky retune", func() bool {
		return state.Source().CenterFrequency == 105100*rf.KHz
	})
	if pct := state.Controls().TunePercent; pct != 0.5 {
		t.Fatalf("TunePercent = %f", pct)
	}
}

func TestLateRetuneAfterSwap(t *testing.T) {
	t.Parallel()
	second := &fakeDongle{}
	dongles := []*fakeDongle{{}, second}
	r, _, _ := newRadio(RadioConfig{
		Debounce: time.Hour,
		Source: source.Config{
			OpenRTL: func(int) (source.RTLDevice, error) {
				d := dongles[0]
				dongles = dongles[1:]
				return d, nil
			},
		},
	})
	defer r.Close()

	if err := r.SelectSource(source.KindRTL, "0", 0); err != nil {
		t.Fatal(err)
	}
	if err := r.TuneTo(105 * rf.MHz); err != nil {
		t.Fatal(err)
	}
	if err := r.SelectSource(source.KindRTL, "0", 0); err != nil {
		t.Fatal(err)
	}
	_, tunes := second.tuning()

	// A timer that fired just before the swap runs its callback after it.
	r.applyRetune()

	if _, n := second.tuning(); n != tunes {
		t.Fatalf("new dongle retuned %d times by the old source's timer", n-tunes)
	}
}

func TestHardwareGain(t *testing.T) {
	t.Parallel()
	dongle := &fakeDongle{}
	r, state, _ := newRadio(RadioConfig{
		Source: source.Config{
			OpenRTL: func(int) (source.RTLDevice, error) { return dongle, nil },
		},
	})
	defer r.Close()

	if err := r.SetGain(20); err != nil {
		t.Fatal(err)
	}
	if err := r.SelectSource(source.KindRTL, "0", 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetGain(source.AutoGain); err != nil {
		t.Fatal(err)
	}
	if state.Controls().Gain != source.AutoGain {
		t.Fatalf("Gain = %v", state.Controls().Gain)
	}
	if err := r.SetPlaying(true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetPlaying(false); err != nil {
		t.Fatal(err)
	}
}

// vim: foldmethod=marker
