// Command voicelaunch is a voice-activated application launcher. It listens
// for a spoken application name, ranks the installed applications by
// similarity and launches the best match.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voicelaunch/internal/app"
	"github.com/MrWong99/voicelaunch/internal/config"
	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt/console"
	sttmock "github.com/MrWong99/voicelaunch/pkg/provider/stt/mock"
	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
	"github.com/MrWong99/voicelaunch/pkg/provider/tts/command"
	ttsmock "github.com/MrWong99/voicelaunch/pkg/provider/tts/mock"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voicelaunch.yaml", "path to the YAML configuration file")
	listenOnce := flag.Bool("listen-once", false, "perform a single listening attempt, then exit")
	flag.Parse()

	// ── Load configuration (the watcher owns the live copy) ──────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if application != nil {
			application.Reload(old, new)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicelaunch: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicelaunch: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voicelaunch starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, *listenOnce)

	application, err = app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithWatcher(watcher),
		app.WithListenOnce(*listenOnce),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("console", func(entry config.ProviderEntry) (stt.Provider, error) {
		prompt := entry.StringOption("prompt", "say an app name> ")
		return console.New(os.Stdin, console.WithPrompt(os.Stdout, prompt)), nil
	})

	// mock never produces events; useful for exercising the HTTP surface.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("command", func(entry config.ProviderEntry) (tts.Provider, error) {
		name := entry.StringOption("command", "")
		if name == "" {
			return nil, errors.New("command: options.command is required")
		}
		var opts []command.Option
		if args := entry.StringsOption("args"); len(args) > 0 {
			opts = append(opts, command.WithArgs(args...))
		}
		if vf := entry.StringOption("voice_flag", ""); vf != "" {
			opts = append(opts, command.WithVoiceFlag(vf))
		}
		if voices := entry.MapOption("voices"); len(voices) > 0 {
			opts = append(opts, command.WithVoices(voices))
		}
		return command.New(name, opts...), nil
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	slog.Debug("registered providers", "stt", reg.STTNames(), "tts", reg.TTSNames())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenOnce bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      voicelaunch — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Recognizer", valueOr(cfg.Recognition.Provider.Name, "(not configured)"))
	printRow("Model", cfg.Recognition.LanguageModel.String())
	printRow("Speech", valueOr(cfg.Speech.Provider.Name, "(log only)"))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Speech.Fallbacks)))
	printRow("Algorithm", cfg.Matching.Algorithm.String())
	printRow("Threshold", fmt.Sprintf("%.2f", cfg.Matching.Threshold))
	printRow("Apps", fmt.Sprint(len(cfg.Apps)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(console only)")
	}
	if listenOnce {
		printRow("Mode", "listen once")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
