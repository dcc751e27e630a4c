package cmd

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxmix/mixcore/pkg/audio"
	"github.com/fluxmix/mixcore/pkg/cache"
	"github.com/fluxmix/mixcore/pkg/decode"
	"github.com/fluxmix/mixcore/pkg/engine"
	"github.com/fluxmix/mixcore/pkg/sink"
	"github.com/fluxmix/mixcore/pkg/stream"
)

var (
	outRate       int
	outChannels   int
	cacheMs       int
	streamVolume  int
	masterVolume  int
	statusSeconds float64
	verbose       bool
)

var playCmd = &cobra.Command{
	Use:   "play <audio_file>",
	Short: "Decode and play one audio file (mp3, flac) through the default device",
	Args:  cobra.ExactArgs(1),
	Run:   runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVar(&outRate, "rate", 48000, "output sample rate in Hz")
	playCmd.Flags().IntVar(&outChannels, "channels", 2, "output channel count")
	playCmd.Flags().IntVar(&cacheMs, "cache-ms", 500, "per-stream cache size in milliseconds")
	playCmd.Flags().IntVar(&streamVolume, "volume", audio.VolumeMax, "stream volume, 0-100")
	playCmd.Flags().IntVar(&masterVolume, "master-volume", audio.VolumeMax, "engine master volume, 0-100")
	playCmd.Flags().Float64Var(&statusSeconds, "status-interval", 1, "seconds between status lines")
	playCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func runPlay(cmd *cobra.Command, args []string) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		slog.Error("audio file not found", "path", path, "error", err)
		os.Exit(1)
	}

	registry := decode.NewRegistry[int32]()
	registry.Register(".mp3", func(p string) (decode.Source[int32], error) {
		return decode.OpenMP3[int32](p)
	})
	registry.Register(".flac", func(p string) (decode.Source[int32], error) {
		return decode.OpenFLAC[int32](p)
	})

	source, err := registry.Open(path)
	if err != nil {
		slog.Error("unsupported audio format", "path", path, "error", err)
		os.Exit(1)
	}
	defer source.Close()

	slog.Info("decoded source opened",
		"path", filepath.Base(path), "sampleRate", source.SampleRate(), "channels", source.Channels())

	snk := sink.NewOto[int32](outRate, outChannels, sink.Int32ToInt16)
	eng := engine.Open[int32](audio.Int32Arithmetic(), snk, engine.Config{
		OutputRate:     outRate,
		OutputChannels: outChannels,
		CacheFrames:    outRate * cacheMs / 1000,
		BlockFrames:    outRate / 100, // 10ms per tick
		TickInterval:   10 * time.Millisecond,
		MaxSilence:     time.Second,
	})
	defer eng.Close()

	eng.SetMasterVolume(masterVolume)

	id, err := eng.AddStreamPull(source.SampleRate(), source.Channels(), cache.Thread, source.Read)
	if err != nil {
		slog.Error("failed to add stream", "error", err)
		os.Exit(1)
	}
	if err := eng.SetVolume(id, streamVolume); err != nil {
		slog.Error("failed to set stream volume", "error", err)
		os.Exit(1)
	}
	if err := eng.Play(id); err != nil {
		slog.Error("failed to start playback", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(time.Duration(statusSeconds * float64(time.Second)))
	defer statusTicker.Stop()

	slog.Info("playback started", "file", filepath.Base(path))
	for {
		select {
		case <-statusTicker.C:
			st, err := eng.Status(id)
			if err != nil {
				if errors.Is(err, engine.ErrStreamNotFound) {
					slog.Info("playback finished")
					return
				}
				slog.Error("status query failed", "error", err)
				return
			}
			slog.Info("status",
				"state", st.State, "playedMs", st.PlayedMs,
				"cacheFillPercent", st.CacheFilling, "cacheDelayFrames", st.CacheDelay)
			if st.State == stream.StateEnded {
				slog.Info("playback finished")
				return
			}
		case sig := <-sigChan:
			slog.Info("signal received, stopping", "signal", sig)
			ms, _ := eng.Abort(id)
			slog.Info("aborted", "playedMs", ms)
			return
		}
	}
}
