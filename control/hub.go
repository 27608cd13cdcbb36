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

package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"hz.tools/rx"
)

// Frame is the JSON sent to websocket clients every tick, and returned by
// /api/status.
type Frame struct {
	Type string `json:"type"`

	Spectrum []float64 `json:"spectrum,omitempty"`

	Frequency       float64 `json:"frequency"`
	CenterFrequency float64 `json:"center_frequency"`
	TunePercent     float64 `json:"tune_percent"`
	Bandwidth       float64 `json:"bandwidth"`
	Mode            rx.Mode `json:"mode"`
	Sticky          bool    `json:"sticky"`

	Playing bool    `json:"playing"`
	Muted   bool    `json:"muted"`
	Volume  float64 `json:"volume"`
	Gain    int     `json:"gain"`
	MinDB   float64 `json:"min_db"`
	MaxDB   float64 `json:"max_db"`

	Source     string  `json:"source"`
	Hardware   bool    `json:"hardware"`
	Seekable   bool    `json:"seekable"`
	SampleRate uint    `json:"sample_rate"`
	Progress   float64 `json:"progress"`

	Recording    bool   `json:"recording"`
	RecordTarget string `json:"record_target"`
	RecordStatus string `json:"record_status"`
}

func (s *Server) frame(typ string) Frame {
	snap := s.state.Snapshot()
	f := Frame{
		Type:            typ,
		Frequency:       float64(s.radio.Frequency()),
		CenterFrequency: float64(snap.Source.CenterFrequency),
		TunePercent:     snap.TunePercent,
		Bandwidth:       float64(snap.Bandwidth),
		Mode:            snap.Mode,
		Sticky:          s.radio.Sticky(),
		Playing:         snap.Playing,
		Muted:           snap.Muted,
		Volume:          snap.Volume,
		Gain:            int(snap.Gain),
		MinDB:           snap.MinDB,
		MaxDB:           snap.MaxDB,
		Source:          string(snap.Source.Kind),
		Hardware:        snap.Source.Hardware,
		Seekable:        snap.Source.Seekable,
		SampleRate:      snap.Source.SampleRate,
		Progress:        snap.Source.Progress,
		Recording:       snap.Record.Enabled,
		RecordTarget:    snap.Record.Target.String(),
		RecordStatus:    snap.RecordStatus,
	}
	if typ == "spectrum" {
		f.Spectrum = snap.Spectrum
	}
	return f
}

type message struct {
	kind int
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan message
}

// writePump is the only writer to the connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Broadcast sends a spectrum frame, and the newest waterfall row when there
// is one, to every client at the configured rate until ctx is done. Run
// calls it; it's exported for callers mounting Handler themselves.
func (s *Server) Broadcast(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.clientCount() == 0 {
			continue
		}
		if row, ok := s.state.WaterfallRow(); ok {
			s.send(message{websocket.BinaryMessage, row})
		}
		data, err := json.Marshal(s.frame("spectrum"))
		if err != nil {
			s.logger.Printf("[control] encoding frame: %v", err)
			continue
		}
		s.send(message{websocket.TextMessage, data})
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// send queues msg for every client, skipping any that are too far behind.
func (s *Server) send(msg message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (s *Server) disconnectAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.conn.Close()
	}
}

// vim: foldmethod=marker
