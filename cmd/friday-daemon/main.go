package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	log "log/slog"

	"github.com/openai/openai-go/v3/option"
	cli "github.com/spf13/pflag"

	"friday/internal/asr"
	"friday/internal/audio"
	"friday/internal/bus"
	"friday/internal/catalog"
	"friday/internal/config"
	"friday/internal/dispatch"
	"friday/internal/listen"
	"friday/internal/llm"
	"friday/internal/notify"
	"friday/internal/proxy"
	"friday/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	captureFlag := cli.StringP("capture", "c", "", "Capture device override (configured name or backend id)")
	playbackFlag := cli.StringP("playback", "d", "", "Playback device override (configured name or backend id)")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	catalogFile := cli.StringP("config", "f", "", "Command catalog path override")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	if *catalogFile != "" {
		cfg.CommandsPath = *catalogFile
	}

	cat, err := catalog.Load(cfg.CommandsPath)
	if err != nil {
		log.Error("Failed to compile command catalog", "err", err)
		os.Exit(1)
	}
	log.Debug("Catalog compiled", "commands", len(cat.Commands))

	if err := audio.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer audio.Terminate()

	reg := audio.NewRegistry(cat)
	if *captureFlag != "" {
		reg.SetActiveCapture(resolveDevice(reg.FindCapture, *captureFlag))
	}
	if *playbackFlag != "" {
		reg.SetActivePlayback(resolveDevice(reg.FindPlayback, *playbackFlag))
	}

	src, err := audio.OpenSource(reg.ActiveCapture())
	if err != nil {
		log.Error("Failed to open capture", "device", reg.ActiveCapture(), "err", err)
		os.Exit(1)
	}
	defer src.Close()

	log.Info("Calibrating ambient noise", "duration", audio.CalibrateDuration)
	baseline, err := audio.Calibrate(src, audio.CalibrateDuration)
	if err != nil {
		log.Warn("Ambient calibration failed, assuming silence", "err", err)
	}
	reg.SetBaseline(baseline)
	log.Info("Ambient baseline", "rms", baseline)

	engine, err := asr.New(cfg.ModelPath, audio.SampleRate)
	if err != nil {
		log.Error("Failed to load recognizer", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	log.Debug("Loaded recognizer", "model", cfg.ModelPath)

	ttsSink, err := audio.OpenSink(reg.ActivePlayback(), audio.SampleRate, 1)
	if err != nil {
		log.Error("Failed to open playback", "device", reg.ActivePlayback(), "err", err)
		os.Exit(1)
	}
	defer ttsSink.Close()

	gain := dispatch.NewGain()
	speaker := tts.NewSpeaker(cfg.EspeakBin, cfg.Voice, ttsSink, audio.SampleRate, dispatch.NewDucker(gain))
	defer speaker.Close()

	var extra []option.RequestOption
	if cfg.LLM.Proxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.LLM.Proxy, cfg.LLM.Timeout)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.LLM.Proxy, "err", err)
			os.Exit(1)
		}
		extra = append(extra, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy", "addr", cfg.LLM.Proxy)
	}
	chat := llm.New(cfg.LLM, cfg.Persona, extra...)

	dispatcher := dispatch.New(dispatch.Deps{
		Registry:    reg,
		Speaker:     speaker,
		Chat:        chat,
		Gain:        gain,
		MusicDir:    cfg.MusicDir,
		ShutdownCmd: cfg.ShutdownCmd,
	})

	b, err := bus.Connect(cfg.BrokerAddr(), cfg.Name, dispatcher.HandleRaw)
	if err != nil {
		log.Error("Failed to join the bus", "err", err)
		os.Exit(1)
	}
	defer b.Close()
	defer dispatcher.Shutdown()
	dispatcher.BindBus(b)

	acknowledge := func() { speaker.Say("Yes boss?") }
	if cfg.AckSound != "" {
		cue := notify.Render(cfg.AckSound, audio.SampleRate)
		acknowledge = func() { speaker.Play(cue) }
	}

	listener := listen.New(listen.Deps{
		Source: src,
		Reopen: func() (listen.Source, error) {
			return audio.OpenSource(reg.ActiveCapture())
		},
		Recognizer:  engine,
		Speaker:     speaker,
		Publisher:   b,
		Chat:        chat,
		Catalog:     cat,
		Acknowledge: acknowledge,
	}, listen.Config{
		WakePhrases:    cfg.WakePhrases,
		GoodbyePhrases: cfg.GoodbyePhrases,
		Ignore:         cfg.Ignore,
		Baseline:       baseline,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Boot up - successful")

	if err := listener.Run(ctx); err != nil {
		log.Error("Listener failed", "err", err)
		os.Exit(1)
	}
	log.Info("Shutting down")
}

// resolveDevice maps a CLI override onto a backend identifier: a configured
// spoken name wins, anything else is taken as a raw backend id.
func resolveDevice(find func(string) (catalog.AudioDevice, bool), name string) string {
	if dev, ok := find(name); ok {
		return dev.Backend
	}
	return name
}
