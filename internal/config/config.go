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

// Package config loads the receiver's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hz.tools/rf"
	"hz.tools/rx"
	"hz.tools/rx/audio"
	"hz.tools/rx/source"
)

// Frequency is an rf.Hz that can be written in the file either as a bare
// number of Hz ("145500000") or with a unit ("145.5MHz").
type Frequency rf.Hz

// Hz returns f as an rf.Hz.
func (f Frequency) Hz() rf.Hz {
	return rf.Hz(f)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Frequency) UnmarshalYAML(node *yaml.Node) error {
	var hz float64
	if err := node.Decode(&hz); err == nil {
		*f = Frequency(hz)
		return nil
	}

	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := rf.ParseHz(text)
	if err != nil {
		return err
	}
	*f = Frequency(parsed)
	return nil
}

// Config is the top level of the configuration file.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Source    SourceConfig    `yaml:"source"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Demod     DemodConfig     `yaml:"demod"`
	Control   ControlConfig   `yaml:"control"`
	Recording RecordingConfig `yaml:"recording"`
}

// AudioConfig picks the sound output.
type AudioConfig struct {
	Backend         audio.Backend `yaml:"backend"`
	Rate            uint          `yaml:"rate"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
}

// SourceConfig is the source opened at startup.
type SourceConfig struct {
	Kind source.Kind `yaml:"kind"`

	// Path is the file played by the file and capture kinds.
	Path string `yaml:"path"`

	// Device is the hardware index for the rtlsdr and receiver kinds.
	Device string `yaml:"device"`

	// Rate is an index into source.Rates(Kind). -1 picks the default.
	Rate int `yaml:"rate"`

	CenterFrequency Frequency `yaml:"center_frequency"`

	// Gain in dB, or -1 for automatic gain control.
	Gain int `yaml:"gain"`

	// BufferLength is the hardware ring buffer size in samples.
	BufferLength int `yaml:"buffer_length"`
}

// SpectrumConfig controls the visualization transform.
type SpectrumConfig struct {
	FFTSize   int     `yaml:"fft_size"`
	Width     int     `yaml:"width"`
	MinDB     float64 `yaml:"min_db"`
	MaxDB     float64 `yaml:"max_db"`
	Smoothing float64 `yaml:"smoothing"`
}

// DemodConfig is the initial tuning.
type DemodConfig struct {
	Mode        rx.Mode   `yaml:"mode"`
	Bandwidth   Frequency `yaml:"bandwidth"`
	TunePercent float64   `yaml:"tune_percent"`
	Volume      float64   `yaml:"volume"`
	Play        bool      `yaml:"play"`
}

// ControlConfig is the websocket and HTTP surface.
type ControlConfig struct {
	Listen string `yaml:"listen"`
	FPS    int    `yaml:"fps"`
}

// RecordingConfig says where recordings go.
type RecordingConfig struct {
	Folder string `yaml:"folder"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend: audio.BackendPulse,
			Rate:    48000,
		},
		Source: SourceConfig{
			Kind:            source.KindFile,
			Rate:            -1,
			CenterFrequency: Frequency(100 * rf.MHz),
			Gain:            int(source.AutoGain),
		},
		Spectrum: SpectrumConfig{
			FFTSize:   1024,
			Width:     900,
			MinDB:     -120,
			MaxDB:     0,
			Smoothing: 0.3,
		},
		Demod: DemodConfig{
			Mode:        rx.ModeNFM,
			Bandwidth:   Frequency(12 * rf.KHz),
			TunePercent: 0.5,
			Volume:      1,
		},
		Control: ControlConfig{
			Listen: "127.0.0.1:8073",
			FPS:    30,
		},
		Recording: RecordingConfig{
			Folder: ".",
		},
	}
}

// Load reads the YAML file at path over the defaults, and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	var errs []error

	if _, err := audio.ParseBackend(string(c.Audio.Backend)); err != nil {
		errs = append(errs, fmt.Errorf("audio.backend: %w", err))
	}
	if c.Audio.Rate == 0 {
		errs = append(errs, errors.New("audio.rate: must be positive"))
	}
	if c.Audio.FramesPerBuffer < 0 {
		errs = append(errs, errors.New("audio.frames_per_buffer: must not be negative"))
	}

	if _, err := source.ParseKind(string(c.Source.Kind)); err != nil {
		errs = append(errs, fmt.Errorf("source.kind: %w", err))
	} else if rates := source.Rates(c.Source.Kind); c.Source.Rate >= len(rates) || c.Source.Rate < -1 {
		errs = append(errs, fmt.Errorf("source.rate: index %d out of range for %s", c.Source.Rate, c.Source.Kind))
	}
	if c.Source.Gain < int(source.AutoGain) {
		errs = append(errs, fmt.Errorf("source.gain: %d is neither a gain nor -1", c.Source.Gain))
	}
	if c.Source.CenterFrequency < 0 {
		errs = append(errs, errors.New("source.center_frequency: must not be negative"))
	}

	if n := c.Spectrum.FFTSize; n < 2 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("spectrum.fft_size: %d is not a power of two", n))
	}
	if c.Spectrum.Width <= 0 {
		errs = append(errs, errors.New("spectrum.width: must be positive"))
	}
	if c.Spectrum.MinDB >= c.Spectrum.MaxDB {
		errs = append(errs, errors.New("spectrum.min_db: must be below max_db"))
	}
	if s := c.Spectrum.Smoothing; s <= 0 || s > 1 {
		errs = append(errs, errors.New("spectrum.smoothing: must be in (0, 1]"))
	}

	if c.Demod.Bandwidth <= 0 {
		errs = append(errs, errors.New("demod.bandwidth: must be positive"))
	}
	if p := c.Demod.TunePercent; p < 0 || p > 1 {
		errs = append(errs, errors.New("demod.tune_percent: must be in [0, 1]"))
	}
	if c.Demod.Volume < 0 {
		errs = append(errs, errors.New("demod.volume: must not be negative"))
	}

	if c.Control.FPS <= 0 {
		errs = append(errs, errors.New("control.fps: must be positive"))
	}

	return errors.Join(errs...)
}

// RateValue resolves Source.Rate to samples per second, 0 meaning the
// source's default.
func (c SourceConfig) RateValue() uint {
	rates := source.Rates(c.Kind)
	if c.Rate < 0 || c.Rate >= len(rates) {
		return 0
	}
	return rates[c.Rate].Rate
}

// vim: foldmethod=marker
