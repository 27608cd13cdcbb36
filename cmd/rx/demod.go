package main

import (
	"os"

	"github.com/spf13/cobra"

	"hz.tools/pulseaudio"
	"hz.tools/rf"
	"hz.tools/rfcap"
	"hz.tools/rx"
	"hz.tools/sdr"
	"hz.tools/sdr/stream"
)

var (
	demodMode   string
	demodOffset float64
	demodRate   uint
	demodGain   float32
)

var demodCmd = &cobra.Command{
	Use:   "demod",
	Short: "Demodulate an rfcap stream from stdin to the speakers",
	Args:  cobra.NoArgs,
	RunE:  demod,
}

func init() {
	flags := demodCmd.Flags()
	flags.StringVarP(&demodMode, "mode", "m", "AM", "demodulation mode")
	flags.Float64VarP(&demodOffset, "offset", "o", 0, "signal offset from the capture's center, in Hz")
	flags.UintVarP(&demodRate, "audio-rate", "a", 48000, "audio sample rate")
	flags.Float32VarP(&demodGain, "gain", "g", 1, "audio gain")
}

func demod(cmd *cobra.Command, args []string) error {
	mode, err := rx.ParseMode(demodMode)
	if err != nil {
		return err
	}

	reader, _, err := rfcap.Reader(os.Stdin)
	if err != nil {
		return err
	}

	reader, err = stream.ConvertReader(reader, sdr.SampleFormatC64)
	if err != nil {
		return err
	}

	audioReader, err := rx.Demodulate(reader, rx.ReaderConfig{
		Mode:       mode,
		Offset:     rf.Hz(demodOffset),
		OutputRate: demodRate,
	})
	if err != nil {
		return err
	}

	speaker, err := pulseaudio.NewWriter(pulseaudio.Config{
		Format:     pulseaudio.SampleFormatFloat32NE,
		Rate:       audioReader.SampleRate(),
		AppName:    "rf",
		StreamName: mode.String(),
		Channels:   1,
	})
	if err != nil {
		return err
	}

	buf := make([]float32, 1024*16)
	for {
		i, err := audioReader.Read(buf)
		if err != nil {
			return err
		}
		for j := range buf[:i] {
			buf[j] *= demodGain
		}
		if err := speaker.Write(buf[:i]); err != nil {
			return err
		}
	}
}
