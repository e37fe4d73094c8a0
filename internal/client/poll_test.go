package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// scriptedSink fails Resync with the queued errors, then succeeds.
type scriptedSink struct {
	mu      sync.Mutex
	script  []error
	resyncs int
	states  []ConnectionState
	stamps  []time.Time
}

func (s *scriptedSink) Deliver(...*domain.Message) {}

func (s *scriptedSink) Resync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs++
	s.stamps = append(s.stamps, time.Now())
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func (s *scriptedSink) SetConnectionState(state ConnectionState, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *scriptedSink) snapshot() ([]ConnectionState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConnectionState(nil), s.states...), s.resyncs
}

func TestPollChannel_DisconnectedPersistsUntilSuccess(t *testing.T) {
	transient := apperrors.ErrTransientNetwork
	sink := &scriptedSink{script: []error{transient, transient, transient}}
	p := NewPollChannel(2*time.Millisecond, BackoffConfig{Initial: time.Millisecond, Max: 4 * time.Millisecond}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, uuid.New(), sink) }()

	require.Eventually(t, func() bool {
		_, n := sink.snapshot()
		return n >= 5
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	states, _ := sink.snapshot()
	assert.Equal(t, []ConnectionState{Connected, Disconnected, Connected}, states,
		"three failures raise one disconnected state that lasts until a success")
}

func TestPollChannel_BacksOffOnFailure(t *testing.T) {
	var script []error
	for i := 0; i < 6; i++ {
		script = append(script, apperrors.ErrTransientNetwork)
	}
	sink := &scriptedSink{script: script}
	p := NewPollChannel(time.Millisecond, BackoffConfig{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx, uuid.New(), sink) }()

	require.Eventually(t, func() bool {
		_, n := sink.snapshot()
		return n >= 4
	}, 3*time.Second, time.Millisecond)

	sink.mu.Lock()
	gap := sink.stamps[3].Sub(sink.stamps[2])
	sink.mu.Unlock()
	assert.GreaterOrEqual(t, gap, 5*time.Millisecond, "failed ticks are spaced by the backoff, not the 1ms interval")
}

func TestPollChannel_StopsOnPermanentError(t *testing.T) {
	sink := &scriptedSink{script: []error{apperrors.ErrNotMember}}
	p := NewPollChannel(time.Millisecond, BackoffConfig{}, logger.NewNop())

	err := p.Run(context.Background(), uuid.New(), sink)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	states, n := sink.snapshot()
	assert.Equal(t, 1, n)
	assert.Equal(t, []ConnectionState{Connected, Disconnected}, states)
}
