package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

func (c BackoffConfig) build() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.Initial > 0 {
		b.InitialInterval = c.Initial
	}
	if c.Max > 0 {
		b.MaxInterval = c.Max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// PollChannel resyncs a room on a fixed interval. A failed tick marks the
// channel Disconnected and pushes the next tick back exponentially; the
// first successful tick restores Connected and the base interval.
type PollChannel struct {
	interval time.Duration
	backoff  BackoffConfig
	log      logger.Logger
}

func NewPollChannel(interval time.Duration, bo BackoffConfig, log logger.Logger) *PollChannel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollChannel{interval: interval, backoff: bo, log: log}
}

func (p *PollChannel) Run(ctx context.Context, roomID uuid.UUID, sink Sink) error {
	b := p.backoff.build()
	state := Connected
	sink.SetConnectionState(Connected, nil)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := sink.Resync(ctx)
		delay := p.interval
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			if state != Connected {
				state = Connected
				b.Reset()
				sink.SetConnectionState(Connected, nil)
			}
		case !apperrors.IsRetryable(err):
			sink.SetConnectionState(Disconnected, err)
			return err
		default:
			p.log.Warn("Poll failed", "room_id", roomID, "error", err)
			if state != Disconnected {
				state = Disconnected
				sink.SetConnectionState(Disconnected, err)
			}
			if next := b.NextBackOff(); next > delay {
				delay = next
			}
		}
		timer.Reset(delay)
	}
}
