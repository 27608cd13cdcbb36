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

	"hz.tools/pulseaudio"
)

// pulseWriter is what pulse needs of a *pulseaudio.Writer.
type pulseWriter interface {
	Write([]float32) error
	Close()
}

// pulseStream adapts *pulseaudio.Writer, whose Write takes interface{}, to
// pulseWriter.
type pulseStream struct{ *pulseaudio.Writer }

func (s pulseStream) Write(b []float32) error { return s.Writer.Write(b) }

var _ pulseWriter = pulseStream{}

// pulse writes to a PulseAudio stream from its own goroutine. Write blocks
// until the server has room, which paces the pulls.
type pulse struct {
	writer pulseWriter
	done   chan struct{}
	wg     sync.WaitGroup
}

func openPulse(sink *Sink, cfg Config) (Output, error) {
	writer, err := pulseaudio.NewWriter(pulseaudio.Config{
		Format:     pulseaudio.SampleFormatFloat32NE,
		Rate:       sink.Rate(),
		AppName:    "rx",
		StreamName: cfg.name(),
		Channels:   1,
	})
	if err != nil {
		return nil, err
	}
	return newPulse(sink, pulseStream{writer}, cfg), nil
}

func newPulse(sink *Sink, writer pulseWriter, cfg Config) *pulse {
	logger := cfg.logger()
	p := &pulse{
		writer: writer,
		done:   make(chan struct{}),
	}

	buf := make([]float32, cfg.frames(sink.Rate()))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.done:
				return
			default:
			}
			sink.Pull(buf)
			if err := writer.Write(buf); err != nil {
				logger.Printf("[audio] pulse write: %v", err)
				return
			}
		}
	}()
	return p
}

// Close stops the writer goroutine and closes the stream.
func (p *pulse) Close() error {
	close(p.done)
	p.wg.Wait()
	p.writer.Close()
	return nil
}

// vim: foldmethod=marker
