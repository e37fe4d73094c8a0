package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

func TestRoomCreate_JoinsCreator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")

	room := env.room(t, owner, true, false)
	assert.Equal(t, 1, room.MembersCount)
	assert.Equal(t, owner.ID, room.CreatedBy)

	ok, err := env.repos.Membership.IsActiveMember(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	logs := env.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.EventTypeRoomCreated, logs[0].EventType)
	assert.Equal(t, domain.ActorRoleUser, logs[0].ActorRole)

	_, err = env.svc.Room.Create(ctx, owner, CreateRoomInput{Name: "   "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRoomJoinLeave_WritesNoticesAndEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "Bob")
	room := env.room(t, owner, false, false)
	env.pub.reset()

	first, err := env.svc.Room.Join(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.True(t, first.Active())
	assert.Equal(t, []string{domain.EventMemberJoined, domain.EventMessageSent}, env.pub.names())

	_, err = env.svc.Room.Join(ctx, bob, room.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, env.svc.Room.Leave(ctx, bob, room.ID))
	assert.ErrorIs(t, env.svc.Room.Leave(ctx, bob, room.ID), apperrors.ErrValidation)

	again, err := env.svc.Room.Join(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "rejoining reuses the membership row")

	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID, Direction: domain.DirectionNewer})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob joined the room", "Bob left the room", "Bob joined the room"}, bodies(page.Messages))
	for _, m := range page.Messages {
		assert.Equal(t, domain.MessageTypeSystem, m.Type)
		assert.Nil(t, m.UserID)
	}
}

func TestRoomJoin_GuestsNeedAllowAnonymous(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	guest := env.guest(t, "Visitor")
	closed := env.room(t, owner, false, false)
	open := env.room(t, owner, false, true)

	_, err := env.svc.Room.Join(ctx, guest, closed.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = env.svc.Room.Join(ctx, guest, open.ID)
	assert.NoError(t, err)

	_, err = env.svc.Room.Join(ctx, guest, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoomGet_PrivateNeedsMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	outsider := env.user(t, "outsider")
	room := env.room(t, owner, true, false)

	_, err := env.svc.Room.Get(ctx, outsider, room.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// The id works as an invitation.
	env.join(t, outsider, room.ID)
	got, err := env.svc.Room.Get(ctx, outsider, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MembersCount)

	members, err := env.svc.Room.Members(ctx, outsider, room.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRoomUpdateDelete_CreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")
	room := env.room(t, owner, false, false)
	env.join(t, bob, room.ID)

	name := "renamed"
	_, err := env.svc.Room.Update(ctx, bob, room.ID, UpdateRoomInput{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	updated, err := env.svc.Room.Update(ctx, owner, room.ID, UpdateRoomInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	assert.ErrorIs(t, env.svc.Room.Delete(ctx, bob, room.ID), apperrors.ErrUnauthorized)

	env.pub.reset()
	require.NoError(t, env.svc.Room.Delete(ctx, owner, room.ID))
	assert.Equal(t, []string{domain.EventRoomDeleted}, env.pub.names())

	_, err = env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: "hello?"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoomLists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")
	public := env.room(t, owner, false, false)
	env.room(t, owner, true, false)
	env.join(t, bob, public.ID)

	rooms, err := env.svc.Room.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, public.ID, rooms[0].ID)

	mine, err := env.svc.Room.ListMine(ctx, bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, public.ID, mine[0].ID)

	mine, err = env.svc.Room.ListMine(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestRoomActivity_CreatorOnlyNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")
	room := env.room(t, owner, false, false)
	env.join(t, bob, room.ID)

	_, err := env.svc.Room.Activity(ctx, bob, room.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	entries, err := env.svc.Room.Activity(ctx, owner, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EventTypeRoomJoined, entries[0].EventType)
	assert.Equal(t, bob.ID, *entries[0].ActorUserID)
	assert.Equal(t, domain.EventTypeRoomCreated, entries[1].EventType)

	entries, err = env.svc.Room.Activity(ctx, owner, room.ID, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
