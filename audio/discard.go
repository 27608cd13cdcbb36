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

package audio

import (
	"sync"
	"time"
)

// discard throws audio away in real time, for running without a sound
// card. The pacing keeps the Sink's backpressure meaningful.
type discard struct {
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func openDiscard(sink *Sink, cfg Config) Output {
	frames := cfg.frames(sink.Rate())
	period := time.Duration(frames) * time.Second / time.Duration(max(sink.Rate(), 1))

	d := &discard{
		ticker: time.NewTicker(max(period, time.Millisecond)),
		done:   make(chan struct{}),
	}
	buf := make([]float32, frames)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.done:
				return
			case <-d.ticker.C:
				sink.Pull(buf)
			}
		}
	}()
	return d
}

func (d *discard) Close() error {
	d.ticker.Stop()
	close(d.done)
	d.wg.Wait()
	return nil
}

// vim: foldmethod=marker
