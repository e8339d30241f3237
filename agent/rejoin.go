package main

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/session"
)

var errDropped = errors.New("channel dropped before it was stable")

// Joiner is the part of *syncclient.Client the rejoiner drives.
type Joiner interface {
	JoinRoom(ctx context.Context, roomID string) (rooms.Room, error)
	Session() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// rejoiner re-joins the current room whenever the channel drops and
// the session falls back to idle with a room still set. An attempt
// counts as successful once the channel has stayed up for stable.
type rejoiner struct {
	client Joiner
	policy func() backoff.BackOff
	stable time.Duration
	log    zerolog.Logger
}

func newRejoiner(client Joiner, log zerolog.Logger) *rejoiner {
	return &rejoiner{
		client: client,
		policy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		stable: 5 * time.Second,
		log:    log.With().Str("module", "rejoin").Logger(),
	}
}

func (r *rejoiner) run(ctx context.Context) {
	updates, cancel := r.client.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if !dropped(s) || ctx.Err() != nil {
				continue
			}
			// The buffered value may be stale by now.
			if cur := r.client.Session(); !dropped(cur) {
				continue
			}
			r.rejoin(ctx, s.RoomID)
		}
	}
}

func dropped(s session.Snapshot) bool {
	return s.Status == session.Idle && s.RoomID != ""
}

func (r *rejoiner) rejoin(ctx context.Context, roomID string) {
	op := func() error {
		if ctx.Err() != nil {
			return nil
		}
		return r.attempt(ctx, roomID)
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("room", roomID).Dur("retry_in", wait).Msg("rejoin failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(r.policy(), ctx), notify); err != nil {
		r.log.Debug().Err(err).Msg("rejoin stopped")
		return
	}
	if ctx.Err() == nil {
		r.log.Info().Str("room", roomID).Msg("rejoined")
	}
}

// attempt joins roomID and waits until the channel is either stable
// or gone again. A room the relay no longer knows is not retried.
func (r *rejoiner) attempt(ctx context.Context, roomID string) error {
	if _, err := r.client.JoinRoom(ctx, roomID); err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	updates, cancel := r.client.Subscribe()
	defer cancel()

	timer := time.NewTimer(r.stable)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if s.Status == session.Idle || s.Status == session.Error {
				return errDropped
			}
		}
	}
}
