package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go-stranger/internal/infrastructure/config"
	"go-stranger/internal/infrastructure/identity"
	"go-stranger/internal/infrastructure/peer"
	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/application/lifecycle"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
	"go-stranger/internal/pkg/matchmaking/persistence"

	flag "github.com/spf13/pflag"
)

const help = `commands:
  /next   look for a stranger (leaves the current chat)
  /stop   stop looking
  /leave  leave the current chat
  /quit   exit
anything else is sent to the stranger`

func main() {
	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	cfg := config.Load()

	flag.StringVar(&cfg.SignalURL, "signal-url", cfg.SignalURL, "rendezvous websocket URL")
	flag.StringVar(&cfg.PresenceBackend, "presence-backend", cfg.PresenceBackend, "postgres, redis or memory")
	flag.StringVar(&cfg.IdentityFile, "identity-file", cfg.IdentityFile, "where the anonymous identity is kept")
	flag.StringSliceVar(&cfg.STUNURLs, "stun", cfg.STUNURLs, "STUN server URLs")
	verbose := flag.BoolP("verbose", "v", false, "log transport details to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stores, err := persistence.Open(startCtx, cfg, "go-stranger-client", logger)
	cancel()
	if err != nil {
		return err
	}
	defer stores.Close()

	registry := usecase.NewPresenceRegistry(stores.Presence, cfg.StalenessThreshold, usecase.WithPresenceLogger(logger))
	pool := usecase.NewWaitingPool(stores.Waiting, logger)
	matcher := usecase.NewController(pool, usecase.SearchConfig{
		Interval:    cfg.SearchInterval,
		MaxAttempts: cfg.SearchMaxAttempts,
	}, logger)

	endpoint := peer.NewEndpoint(peer.Config{
		SignalURL:  cfg.SignalURL,
		ICEServers: peer.ICEServers(cfg.STUNURLs),
	}, logger)

	session := lifecycle.NewSession(lifecycle.Config{
		OpenTimeout:          cfg.OpenTimeout,
		DialDelay:            cfg.DialDelay,
		DialTimeout:          cfg.DialTimeout,
		AwaitIncomingTimeout: cfg.AwaitIncomingTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		CountInterval:        cfg.CountRefreshInterval,
	}, lifecycle.Deps{
		Endpoint:   endpoint,
		Presence:   registry,
		Matchmaker: matcher,
		Identities: identity.NewFileStore(cfg.IdentityFile),
		Logger:     logger,
	}, lifecycle.Hooks{
		OnEntry: func(e match.Entry) { fmt.Fprintln(out, render(e)) },
		OnPhase: func(p match.Phase) { fmt.Fprintf(out, "[%s]\n", p) },
		OnCount: func(n int64) { logger.Debug("online", "count", n) },
	})

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	fmt.Fprintln(out, help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case err := <-done:
			return err
		case line, ok := <-lines:
			if !ok {
				stop()
				return <-done
			}
			if quit := dispatch(session, line, out); quit {
				stop()
				return <-done
			}
		}
	}
}

// dispatch runs one input line against the session and reports whether to exit.
func dispatch(s *lifecycle.Session, line string, out io.Writer) bool {
	var err error
	switch cmd := strings.TrimSpace(line); cmd {
	case "":
		return false
	case "/quit":
		return true
	case "/help":
		fmt.Fprintln(out, help)
	case "/stop":
		err = s.Cancel()
	case "/leave":
		err = s.Disconnect()
	case "/next":
		if s.Phase() == match.PhaseConnected {
			if err = s.Disconnect(); err != nil {
				break
			}
		}
		err = s.Search()
	case "/online":
		fmt.Fprintf(out, "%d online\n", s.OnlineCount())
	default:
		err = s.Send(line)
	}
	if err != nil {
		fmt.Fprintln(out, "!", err)
	}
	return false
}

func render(e match.Entry) string {
	ts := e.Time.Format("15:04:05")
	switch e.Sender {
	case match.SenderMe:
		return fmt.Sprintf("%s you: %s", ts, e.Text)
	case match.SenderThem:
		return fmt.Sprintf("%s stranger: %s", ts, e.Text)
	default:
		return fmt.Sprintf("%s * %s", ts, e.Text)
	}
}
