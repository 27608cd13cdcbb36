package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hz.tools/rx"
	"hz.tools/rx/audio"
	"hz.tools/rx/control"
	"hz.tools/rx/internal/config"
	"hz.tools/rx/pipeline"
	"hz.tools/rx/source"
	"hz.tools/rx/spectrum"
	"hz.tools/sdr/rtl"
)

var (
	configPath string
	listen     string
	sourceKind string
	filePath   string
	device     string
	rateIndex  int
	backend    string
	frequency  float64
	modeName   string
	play       bool
)

var rootCmd = &cobra.Command{
	Use:          "rx",
	Short:        "A software defined radio receiver",
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&listen, "listen", "l", "", "address for the control server")
	flags.StringVarP(&sourceKind, "source", "s", "", "source kind: file, capture, rtlsdr or receiver")
	flags.StringVarP(&filePath, "file", "f", "", "WAV or rfcap file to play")
	flags.StringVarP(&device, "device", "d", "", "hardware device index")
	flags.IntVarP(&rateIndex, "rate", "r", -1, "index into the source's sample rate table")
	flags.StringVarP(&backend, "audio", "a", "", "audio backend: pulse, portaudio, oto or none")
	flags.Float64VarP(&frequency, "frequency", "F", 0, "hardware center frequency in Hz")
	flags.StringVarP(&modeName, "mode", "m", "", "demodulation mode")
	flags.BoolVarP(&play, "play", "p", false, "start playing as soon as the source is open")

	rootCmd.AddCommand(demodCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Control.Listen = listen
	}
	if flags.Changed("source") {
		cfg.Source.Kind = source.Kind(sourceKind)
	}
	if flags.Changed("file") {
		cfg.Source.Path = filePath
	}
	if flags.Changed("device") {
		cfg.Source.Device = device
	}
	if flags.Changed("rate") {
		cfg.Source.Rate = rateIndex
	}
	if flags.Changed("audio") {
		cfg.Audio.Backend = audio.Backend(backend)
	}
	if flags.Changed("frequency") {
		cfg.Source.CenterFrequency = config.Frequency(frequency)
	}
	if flags.Changed("mode") {
		mode, err := rx.ParseMode(modeName)
		if err != nil {
			return cfg, err
		}
		cfg.Demod.Mode = mode
		if bw, ok := mode.DefaultBandwidth(); ok {
			cfg.Demod.Bandwidth = config.Frequency(bw)
		}
	}
	if flags.Changed("play") {
		cfg.Demod.Play = play
	}

	kind, err := source.ParseKind(string(cfg.Source.Kind))
	if err != nil {
		return cfg, err
	}
	cfg.Source.Kind = kind
	return cfg, cfg.Validate()
}

// rtlWindow is how many samples the hz.tools/sdr RTL driver reads at once.
const rtlWindow = 16 * 16384

func openReceiver(index int) (source.Device, error) {
	dev, err := rtl.New(uint(index), rtlWindow)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := pipeline.NewMetrics()
	sink := audio.NewSink(cfg.Audio.Rate, logger)
	out, err := audio.Open(cfg.Audio.Backend, sink, audio.Config{
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Name:            "rx",
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("opening %s audio: %w", cfg.Audio.Backend, err)
	}
	defer out.Close()

	state := pipeline.NewState(pipeline.Controls{
		TunePercent: cfg.Demod.TunePercent,
		Bandwidth:   cfg.Demod.Bandwidth.Hz(),
		Mode:        cfg.Demod.Mode,
		Volume:      cfg.Demod.Volume,
		Gain:        source.Gain(cfg.Source.Gain),
		MinDB:       cfg.Spectrum.MinDB,
		MaxDB:       cfg.Spectrum.MaxDB,
	})
	slot := &pipeline.Slot{}
	radio := pipeline.NewRadio(slot, state, sink, pipeline.RadioConfig{
		Source: source.Config{
			Logger:       logger,
			BufferLength: cfg.Source.BufferLength,
			OnOverflow:   metrics.Overflow,
			OpenReceiver: openReceiver,
		},
		CenterFrequency: cfg.Source.CenterFrequency.Hz(),
		Logger:          logger,
		Metrics:         metrics,
	})
	defer radio.Close()

	if id := sourceID(cfg.Source); id != "" {
		if err := radio.SelectSource(cfg.Source.Kind, id, cfg.Source.RateValue()); err != nil {
			logger.Printf("[rx] %v", err)
		} else if cfg.Demod.Play {
			if err := radio.SetPlaying(true); err != nil {
				logger.Printf("[rx] starting %s: %v", cfg.Source.Kind, err)
			}
		}
	}

	p := pipeline.New(slot, state, sink, pipeline.Config{
		AudioRate: cfg.Audio.Rate,
		Analyzer: spectrum.AnalyzerConfig{
			Size:      cfg.Spectrum.FFTSize,
			Width:     cfg.Spectrum.Width,
			Smoothing: cfg.Spectrum.Smoothing,
			Floor:     spectrum.DefaultAnalyzerConfig.Floor,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	srv := control.New(radio, state, control.Config{
		Addr:    cfg.Control.Listen,
		FPS:     cfg.Control.FPS,
		Folder:  cfg.Recording.Folder,
		Logger:  logger,
		Metrics: metrics,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run(ctx)
		cancel()
	}()

	err = p.Run(ctx)
	cancel()
	if srvErr := <-errc; srvErr != nil {
		return srvErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sourceID is what to open at startup, if anything.
func sourceID(cfg config.SourceConfig) string {
	switch cfg.Kind {
	case source.KindFile, source.KindCapture:
		return cfg.Path
	}
	if cfg.Device == "" {
		return "0"
	}
	return cfg.Device
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
