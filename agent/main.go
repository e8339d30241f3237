// Command agent is a headless collabtext participant. It joins or
// creates a room on a relay and serves the room's document to local
// editor views over a websocket hub.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sumanthd032/collabtext/internal/autocomplete"
	"github.com/sumanthd032/collabtext/internal/config"
	"github.com/sumanthd032/collabtext/internal/discovery"
	"github.com/sumanthd032/collabtext/internal/logging"
	"github.com/sumanthd032/collabtext/internal/recent"
	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/session"
	"github.com/sumanthd032/collabtext/internal/syncclient"
)

const discoveryTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "collabtext-agent:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.APIURL == "" {
		log.Info().Dur("timeout", discoveryTimeout).Msg("browsing mDNS for a relay")
		cfg.APIURL, err = discovery.Browse(ctx, discoveryTimeout, log)
		if err != nil {
			return err
		}
	}

	var history *recent.Store
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		history, err = recent.Open(filepath.Join(cfg.DataDir, "recent.db"), 20)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	hub := newHub(log)
	view := newBridge(ctx, hub, log)
	client, err := syncclient.New(syncclient.Config{
		Rooms:     rooms.NewClient(cfg.APIURL, nil),
		Suggester: autocomplete.NewClient(cfg.APIURL, nil),
		Dialer:    &syncclient.WSDialer{BaseURL: cfg.WebsocketURL()},
		View:      view,
		Debounce:  cfg.Debounce,
		Language:  cfg.Language,
		Logger:    &log,
	})
	if err != nil {
		return err
	}
	view.client = client

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = client.Run(ctx)
	}()
	go hub.run(ctx)
	go view.watch(ctx)
	if history != nil {
		go remember(ctx, client, history, log)
	}
	if cfg.Rejoin {
		go newRejoiner(client, log).run(ctx)
	}

	log.Info().Str("api", cfg.APIURL).Str("client", client.ClientID()).Msg("collabtext agent starting")
	go enterRoom(ctx, client, cfg, history, log)

	r := mux.NewRouter()
	r.HandleFunc("/ws", hub.serveWs)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.Session())
	}).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("serving local views")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	stop()
	<-loopDone
	return err
}

// enterRoom joins the configured room, or the most recent one when
// resuming, and creates a fresh room otherwise.
func enterRoom(ctx context.Context, client *syncclient.Client, cfg config.Client, history *recent.Store, log zerolog.Logger) {
	roomID := cfg.Room
	if roomID == "" && cfg.Resume && history != nil {
		latest, err := history.Latest()
		if err != nil && !errors.Is(err, recent.ErrEmpty) {
			log.Warn().Err(err).Msg("read recent rooms")
		}
		roomID = latest
	}

	if roomID != "" {
		if _, err := client.JoinRoom(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("join room")
		}
		return
	}
	room, err := client.CreateRoom(ctx)
	if err != nil {
		log.Error().Err(err).Msg("create room")
		return
	}
	log.Info().Str("room", room.RoomID).Msg("share this room ID to collaborate")
}

// remember records every room the session resolves.
func remember(ctx context.Context, client *syncclient.Client, history *recent.Store, log zerolog.Logger) {
	updates, cancel := client.Subscribe()
	defer cancel()
	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if s.Status != session.Connected || s.RoomID == last {
				continue
			}
			last = s.RoomID
			if err := history.Touch(s.RoomID); err != nil {
				log.Warn().Err(err).Msg("record recent room")
			}
		}
	}
}
