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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/pipeline"
	"hz.tools/rx/record"
	"hz.tools/rx/source"
)

var (
	// ErrUnknownCommand is returned for a Command with a Type that isn't
	// handled.
	ErrUnknownCommand = errors.New("control: unknown command")

	// ErrMissingField is returned when a Command lacks what its Type needs.
	ErrMissingField = errors.New("control: missing field")

	// ErrBadValue is returned when a Command's value is out of range.
	ErrBadValue = errors.New("control: bad value")
)

// Command is a JSON message from a websocket client. Which fields are read
// depends on Type:
//
//	tune       value: 0 to 1 across the passband
//	frequency  value: Hz
//	bandwidth  value: Hz
//	mode       mode: AM, NFM, WFM, LSB, USB or OFF
//	play       enabled
//	mute       enabled
//	sticky     enabled
//	volume     value: linear gain
//	gain       value: dB, negative for automatic
//	range      min, max: dB
//	seek       value: 0 to 1 through the file
//	record     enabled, target: audio or baseband
//	source     kind, id, rate
type Command struct {
	Type string `json:"type"`

	Value   *float64 `json:"value,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
	Mode    string   `json:"mode,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Target  string   `json:"target,omitempty"`

	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
	Rate uint   `json:"rate,omitempty"`
}

// Reply is sent back to the client when a Command fails.
type Reply struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[control] upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan message, 64)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	go c.writePump()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.send)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(c, Reply{Type: "error", Error: err.Error()})
			continue
		}
		if err := s.Apply(cmd); err != nil {
			s.reply(c, Reply{Type: "error", Command: cmd.Type, Error: err.Error()})
		}
	}
}

func (s *Server) reply(c *client, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- message{websocket.TextMessage, data}:
	default:
	}
}

func (cmd Command) value() (float64, error) {
	if cmd.Value == nil {
		return 0, fmt.Errorf("%w: %s needs a value", ErrMissingField, cmd.Type)
	}
	return *cmd.Value, nil
}

func (cmd Command) enabled() (bool, error) {
	if cmd.Enabled == nil {
		return false, fmt.Errorf("%w: %s needs enabled", ErrMissingField, cmd.Type)
	}
	return *cmd.Enabled, nil
}

// Apply carries out a Command against the Radio and State.
func (s *Server) Apply(cmd Command) error {
	switch cmd.Type {
	case "tune":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		return s.radio.TunePercent(v)

	case "frequency":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		return s.radio.TuneTo(rf.Hz(v))

	case "bandwidth":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("%w: bandwidth %f", ErrBadValue, v)
		}
		s.state.SetBandwidth(rf.Hz(v))
		return nil

	case "mode":
		mode, err := rx.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		s.radio.SetMode(mode)
		return nil

	case "play":
		on, err := cmd.enabled()
		if err != nil {
			return err
		}
		return s.radio.SetPlaying(on)

	case "mute":
		on, err := cmd.enabled()
		if err != nil {
			return err
		}
		s.state.SetMuted(on)
		return nil

	case "sticky":
		on, err := cmd.enabled()
		if err != nil {
			return err
		}
		s.radio.SetSticky(on)
		return nil

	case "volume":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("%w: volume %f", ErrBadValue, v)
		}
		s.state.SetVolume(v)
		return nil

	case "gain":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		gain := source.Gain(v)
		if v < 0 {
			gain = source.AutoGain
		}
		return s.radio.SetGain(gain)

	case "range":
		if cmd.Min == nil || cmd.Max == nil {
			return fmt.Errorf("%w: range needs min and max", ErrMissingField)
		}
		if *cmd.Min >= *cmd.Max {
			return fmt.Errorf("%w: range %f to %f", ErrBadValue, *cmd.Min, *cmd.Max)
		}
		s.state.SetRange(*cmd.Min, *cmd.Max)
		return nil

	case "seek":
		v, err := cmd.value()
		if err != nil {
			return err
		}
		return s.radio.Seek(v)

	case "record":
		on, err := cmd.enabled()
		if err != nil {
			return err
		}
		target := record.TargetAudio
		if cmd.Target != "" {
			if target, err = record.ParseTarget(cmd.Target); err != nil {
				return err
			}
		}
		s.state.SetRecording(pipeline.RecordRequest{
			Enabled: on,
			Target:  target,
			Folder:  s.cfg.Folder,
		})
		return nil

	case "source":
		kind, err := source.ParseKind(cmd.Kind)
		if err != nil {
			return err
		}
		return s.radio.SelectSource(kind, cmd.ID, cmd.Rate)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

// vim: foldmethod=marker
