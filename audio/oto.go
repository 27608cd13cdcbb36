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
	"encoding/binary"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// pcmReader renders the Sink as little endian float32 bytes for oto.
type pcmReader struct {
	sink *Sink
	buf  []float32
}

func (r *pcmReader) Read(p []byte) (int, error) {
	n := len(p) / 4
	if n == 0 {
		return 0, nil
	}
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	samples := r.buf[:n]
	r.sink.Pull(samples)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return n * 4, nil
}

type otoOutput struct {
	player *oto.Player
}

func openOto(sink *Sink, cfg Config) (Output, error) {
	frames := cfg.frames(sink.Rate())
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(sink.Rate()),
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(frames) * time.Second / time.Duration(sink.Rate()),
	})
	if err != nil {
		return nil, err
	}
	<-ready

	player := ctx.NewPlayer(&pcmReader{sink: sink})
	player.Play()
	return &otoOutput{player: player}, nil
}

func (o *otoOutput) Close() error {
	o.player.Pause()
	return o.player.Close()
}

// vim: foldmethod=marker
