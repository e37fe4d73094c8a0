package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

func TestPresence_AuthorizeAndTrack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	outsider := env.user(t, "outsider")
	public := env.room(t, owner, false, false)
	private := env.room(t, owner, true, false)

	assert.NoError(t, env.svc.Presence.Authorize(ctx, outsider, public.ID))
	assert.ErrorIs(t, env.svc.Presence.Authorize(ctx, outsider, private.ID), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, env.svc.Presence.Authorize(ctx, domain.Identity{}, public.ID), apperrors.ErrUnauthenticated)
	assert.ErrorIs(t, env.svc.Presence.Authorize(ctx, owner, uuid.New()), apperrors.ErrNotFound)

	member := domain.PresenceMember{ConnectionID: "c1", UserID: owner.ID, Name: owner.DisplayName, Since: time.Now()}
	require.NoError(t, env.svc.Presence.Enter(ctx, private.ID, member))

	here, err := env.svc.Presence.Here(ctx, owner, private.ID)
	require.NoError(t, err)
	require.Len(t, here, 1)
	assert.Equal(t, "c1", here[0].ConnectionID)

	_, err = env.svc.Presence.Here(ctx, outsider, private.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	require.NoError(t, env.svc.Presence.Leave(ctx, private.ID, "c1"))
	here, err = env.svc.Presence.Here(ctx, owner, private.ID)
	require.NoError(t, err)
	assert.Empty(t, here)
}

func TestRateLimit_Allow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := domain.RateLimitKey(domain.RateLimitScopeIP, "10.0.0.1")

	for i := 0; i < 2; i++ {
		d, err := env.svc.RateLimit.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := env.svc.RateLimit.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 2, d.Limit)
	assert.Greater(t, d.ResetIn, time.Duration(0))

	other, err := env.svc.RateLimit.Allow(ctx, domain.RateLimitKey(domain.RateLimitScopeIP, "10.0.0.2"))
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}
