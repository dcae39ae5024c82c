package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CodeSync/internal/adapters/rtc"
	relayclient "github.com/dkeye/CodeSync/internal/adapters/signal"
	"github.com/dkeye/CodeSync/internal/app/orch"
	"github.com/dkeye/CodeSync/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	flag.StringVar(&cfg.Session, "session", cfg.Session, "session id to join")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "display name")
	flag.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "relay websocket url")
	flag.StringVar(&cfg.Mic, "mic", cfg.Mic, "microphone: silence or denied")
	flag.Parse()
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))

	conn, err := relayclient.Dial(ctx, relayclient.DialConfig{
		URL:        cfg.RelayURL,
		Session:    cfg.Session,
		Name:       cfg.Name,
		SendBuffer: cfg.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to join session")
	}

	links, err := rtc.NewLinkFactory(rtc.WebRTCConfig(cfg.ICEServers))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init webrtc")
	}

	view := newConsoleView(os.Stdout)
	sess := orch.NewSession(orch.Config{
		Relay:                conn,
		Links:                links,
		Mic:                  rtc.NewMicrophone(cfg.Mic),
		View:                 view,
		Debounce:             cfg.Debounce,
		MaxPendingCandidates: cfg.CandidateBuffer,
	})

	go func() {
		newREPL(sess, view).Run(ctx, os.Stdin)
		cancel()
	}()

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
	log.Info().Msg("Client exited gracefully")
}
