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
	"reflect"
	"testing"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/source"
)

func TestSlotReplaceOrder(t *testing.T) {
	t.Parallel()
	var events []string
	slot := &Slot{}

	a := &fakeSource{name: "a", events: &events}
	if err := slot.Replace(func() (source.Source, error) { return a, nil }); err != nil {
		t.Fatal(err)
	}
	_, gen := slot.Current()

	b := &fakeSource{name: "b", events: &events}
	err := slot.Replace(func() (source.Source, error) {
		if cur, _ := slot.Current(); cur != nil {
			t.Error("old source still published while the new one opens")
		}
		events = append(events, "b open")
		return b, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"a stop", "a close", "b open"}; !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	cur, next := slot.Current()
	if cur != b || next == gen {
		t.Fatalf("Current = %v gen %d (was %d)", cur, next, gen)
	}
}

func TestSlotReplaceFailure(t *testing.T) {
	t.Parallel()
	var events []string
	slot := &Slot{}
	slot.Replace(func() (source.Source, error) {
		return &fakeSource{name: "a", events: &events}, nil
	})

	err := slot.Replace(func() (source.Source, error) { return nil, errBroken })
	if !errors.Is(err, errBroken) {
		t.Fatalf("Replace = %v", err)
	}
	if cur, _ := slot.Current(); cur != nil {
		t.Fatal("failed Replace left a source in the slot")
	}
	if want := []string{"a stop", "a close"}; !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v", events)
	}

	if err := slot.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStateModeBandwidth(t *testing.T) {
	t.Parallel()
	s := NewState(DefaultControls)

	for _, tc := range []struct {
		mode rx.Mode
		want rf.Hz
	}{
		{rx.ModeAM, 8 * rf.KHz},
		{rx.ModeWFM, 180 * rf.KHz},
		{rx.ModeUSB, 3 * rf.KHz},
		{rx.ModeOff, 3 * rf.KHz},
		{rx.ModeNFM, 12 * rf.KHz},
		{rx.ModeLSB, 3 * rf.KHz},
	} {
		s.SetMode(tc.mode)
		if c := s.Controls(); c.Mode != tc.mode || c.Bandwidth != tc.want {
			t.Errorf("after SetMode(%s): mode %s bandwidth %v, want %v", tc.mode, c.Mode, c.Bandwidth, tc.want)
		}
	}
}

func TestStateClamps(t *testing.T) {
	t.Parallel()
	s := NewState(DefaultControls)
	s.SetTunePercent(1.5)
	if s.Controls().TunePercent != 1 {
		t.Fatalf("TunePercent = %f", s.Controls().TunePercent)
	}
	s.SetTunePercent(-1)
	if s.Controls().TunePercent != 0 {
		t.Fatalf("TunePercent = %f", s.Controls().TunePercent)
	}
	s.SetVolume(-3)
	if s.Controls().Volume != 0 {
		t.Fatalf("Volume = %f", s.Controls().Volume)
	}
}

func TestStateAudioGain(t *testing.T) {
	t.Parallel()
	s := NewState(DefaultControls)
	s.SetVolume(2)
	if g := s.Controls().AudioGain(); g != 2 {
		t.Fatalf("AudioGain = %f", g)
	}
	s.SetMuted(true)
	if g := s.Controls().AudioGain(); g != 0 {
		t.Fatalf("muted AudioGain = %f", g)
	}
}

func TestStateWaterfallDirty(t *testing.T) {
	t.Parallel()
	s := NewState(DefaultControls)
	if _, ok := s.WaterfallRow(); ok {
		t.Fatal("row available before Publish")
	}
	s.Publish([]float64{-50}, []byte{1, 2, 3, 255})
	row, ok := s.WaterfallRow()
	if !ok || len(row) != 4 {
		t.Fatalf("WaterfallRow = %v, %t", row, ok)
	}
	if _, ok := s.WaterfallRow(); ok {
		t.Fatal("row returned twice")
	}
	if got := s.Snapshot().Spectrum; len(got) != 1 || got[0] != -50 {
		t.Fatalf("Spectrum = %v", got)
	}

	s.Publish([]float64{-50}, []byte{1, 2, 3, 255})
	s.ResetDisplay()
	if _, ok := s.WaterfallRow(); ok {
		t.Fatal("row survived ResetDisplay")
	}
	if len(s.Spectrum()) != 0 {
		t.Fatal("spectrum survived ResetDisplay")
	}
}

// vim: foldmethod=marker
