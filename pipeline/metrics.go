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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the receiver's Prometheus counters. Each Metrics has its own
// Registry, so more than one receiver can live in a process.
type Metrics struct {
	Registry *prometheus.Registry

	IQSamples         prometheus.Counter
	AudioSamples      prometheus.Counter
	RingDropped       prometheus.Counter
	SourceSwaps       prometheus.Counter
	EmptyReads        prometheus.Counter
	BackpressureWaits prometheus.Counter
	AudioBuffered     prometheus.Gauge
}

// NewMetrics creates and registers all the receiver's metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		IQSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_iq_samples_total",
			Help: "IQ samples read from the active source",
		}),
		AudioSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_audio_samples_total",
			Help: "Demodulated audio samples queued for playback",
		}),
		RingDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_ring_dropped_samples_total",
			Help: "IQ samples dropped by a hardware source's ring buffer overflowing",
		}),
		SourceSwaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_source_swaps_total",
			Help: "Number of times the active source was replaced",
		}),
		EmptyReads: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_empty_reads_total",
			Help: "Reads from the active source that returned no samples",
		}),
		BackpressureWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "rx_backpressure_waits_total",
			Help: "Times file playback waited for the audio device to catch up",
		}),
		AudioBuffered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rx_audio_buffered_samples",
			Help: "Audio samples waiting to be played",
		}),
	}
}

// Overflow is a source.Config OnOverflow hook.
func (m *Metrics) Overflow(dropped int) {
	m.RingDropped.Add(float64(dropped))
}

// vim: foldmethod=marker
