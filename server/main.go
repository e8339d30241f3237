// Command server runs the collabtext relay: room provisioning,
// autocomplete and the per-room websocket channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sumanthd032/collabtext/internal/config"
	"github.com/sumanthd032/collabtext/internal/discovery"
	"github.com/sumanthd032/collabtext/internal/logging"
	"github.com/sumanthd032/collabtext/internal/relay"
	"github.com/sumanthd032/collabtext/internal/store"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "collabtext-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	broker, err := openBroker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	srv := relay.New(st, broker, log)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Advertise {
		port, err := listenPort(cfg.Addr)
		if err != nil {
			return err
		}
		withdraw, err := discovery.Advertise(port, log)
		if err != nil {
			return err
		}
		defer withdraw()
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("collabtext relay starting")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Close()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Server, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("no database configured, rooms are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to PostgreSQL")
	return pg, nil
}

func openBroker(ctx context.Context, cfg config.Server, log zerolog.Logger) (relay.Broker, error) {
	if cfg.RedisAddr == "" {
		return relay.NewMemoryBroker(), nil
	}
	b, err := relay.NewRedisBroker(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	log.Info().Str("redis", cfg.RedisAddr).Msg("connected to Redis")
	return b, nil
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	return strconv.Atoi(port)
}
