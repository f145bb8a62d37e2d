package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibesync/client/internal/commentary"
	"github.com/vibesync/client/internal/connection"
	"github.com/vibesync/client/internal/device"
	"github.com/vibesync/client/internal/domain"
	"github.com/vibesync/client/internal/engine"
	"github.com/vibesync/client/internal/rejoin"
	"github.com/vibesync/client/internal/session"
	"github.com/vibesync/client/internal/spotify"
	"github.com/vibesync/client/pkg/ctxlogger"
)

type AppConfig struct {
	ServerURL    string `json:"server_url"`
	Room         string `json:"room"`
	Credential   string `json:"-"`
	LogLevel     string `json:"log_level"`
	StorageDir   string `json:"storage_dir"`
	CallbackAddr string `json:"callback_addr"`
	PollSeconds  int    `json:"poll_seconds"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if cfg.PollSeconds < 1 {
		return fmt.Errorf("poll interval must be at least 1 second")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		stop()
	}()

	store := session.NewStore(cfg.StorageDir)
	sess := session.NewContext(store, logger)

	if cfg.Credential != "" {
		// Credential supplied on the command line, the CLI analogue of
		// a token arriving via URL parameter.
		sess.SetCredential(cfg.Credential)
	} else if credential, err := store.Load(); err == nil {
		sess.SetCredential(credential)
	}

	if cfg.CallbackAddr != "" {
		callback := session.NewCallbackServer(cfg.CallbackAddr, sess, logger)
		go func() {
			if err := callback.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Warn("login callback server stopped", "error", err)
			}
		}()
	}

	mgr := connection.NewManager(cfg.ServerURL, logger)

	credential := sess.BestCredential()
	var sp *spotify.Client
	var eng *engine.Engine
	if credential != "" {
		sp = spotify.NewClient(credential, logger)
		eng = engine.NewEngine(mgr, sess, sp, logger)
	} else {
		logger.Warn("no credential available: playback control disabled, queue management still works")
		eng = engine.NewEngine(mgr, sess, nil, logger)
	}

	var volumes commentary.VolumeControl = commentary.NopVolume{}
	if sp != nil {
		go func() {
			profileCtx, cancel := context.WithTimeout(runCtx, 15*time.Second)
			defer cancel()

			profile, err := sp.Profile(profileCtx)
			if err != nil {
				logger.Warn("failed to fetch profile", "error", err)
				return
			}
			sess.SetProfile(&profile)
			logger.Info("logged in", "user", profile.Name)
		}()

		dev := device.NewConnectDevice(sp, time.Duration(cfg.PollSeconds)*time.Second, logger)
		eng.AttachDevice(dev)
		volumes = dev

		go func() {
			if err := dev.Connect(runCtx); err != nil {
				logger.Warn("failed to connect playback device", "error", err)
			}
		}()
	}

	arbiter := commentary.NewArbiter(volumes, commentary.NewBeepAnnouncer(logger), commentary.NewExecSpeech(), logger)
	eng.OnCommentary(func(ev domain.CommentaryEvent) {
		arbiter.HandleCommentary(runCtx, ev)
	})

	coordinator := rejoin.NewCoordinator(eng, cfg.Room, logger)
	mgr.OnEvent(eng.HandleEvent)
	mgr.OnConnect(coordinator.HandleConnected)

	go func() {
		if err := mgr.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("connection manager stopped", "error", err)
		}
	}()

	console := newConsole(eng, coordinator, sp, logger)
	if err := console.run(runCtx); err != nil {
		logger.Debug("console exited", "error", err)
	}

	// Deterministic teardown: leave the room, stop the progress tick,
	// release the device handle.
	if err := eng.Leave(); err != nil {
		logger.Debug("leave on shutdown failed", "error", err)
	}
	eng.DetachDevice()

	return nil
}
