package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

func bodies(msgs []*domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestFetchPage_InitialLoadThenOlder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	for i := 1; i <= 25; i++ {
		env.send(t, owner, room.ID, fmt.Sprintf("message %d", i))
	}

	first, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID, Limit: 20})
	require.NoError(t, err)
	require.Len(t, first.Messages, 20)
	assert.True(t, first.HasMore)
	assert.Equal(t, "message 25", first.Messages[0].Body, "initial load is newest first")
	assert.Equal(t, "message 6", first.Messages[19].Body)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, first.Messages[19].Cursor(), *first.NextCursor)

	second, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
		RoomID: room.ID, Cursor: first.NextCursor, Limit: 20, Direction: domain.DirectionOlder,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"message 5", "message 4", "message 3", "message 2", "message 1"}, bodies(second.Messages))
	assert.False(t, second.HasMore)
}

func TestFetchPage_HasMoreIsNotCountEqualsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	for i := 0; i < 20; i++ {
		env.send(t, owner, room.ID, "m")
	}

	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 20)
	assert.False(t, page.HasMore, "exactly limit remaining is the final page")

	env.send(t, owner, room.ID, "m")
	page, err = env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID, Limit: 20})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
}

func TestFetchPage_NewerChainsWithoutGapsOrDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	var want []string
	for i := 1; i <= 25; i++ {
		want = append(want, env.send(t, owner, room.ID, fmt.Sprintf("message %d", i)).Body)
	}

	var got []string
	var cursor *domain.Cursor
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
			RoomID: room.ID, Cursor: cursor, Limit: 7, Direction: domain.DirectionNewer,
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Messages), 7)
		got = append(got, bodies(page.Messages)...)
		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}
	assert.Equal(t, want, got)
}

func TestFetchPage_TieBreakOnEqualTimestamps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < 5; i++ {
		msg := &domain.Message{ID: uuid.New(), RoomID: room.ID, Body: "same instant", Type: domain.MessageTypeSystem, CreatedAt: ts}
		require.NoError(t, env.repos.Message.Create(ctx, msg))
		ids[msg.ID] = true
	}

	var seen []*domain.Message
	var cursor *domain.Cursor
	for {
		page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
			RoomID: room.ID, Cursor: cursor, Limit: 2, Direction: domain.DirectionNewer,
		})
		require.NoError(t, err)
		seen = append(seen, page.Messages...)
		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	require.Len(t, seen, 5)
	for i, m := range seen {
		assert.True(t, ids[m.ID])
		delete(ids, m.ID)
		if i > 0 {
			assert.True(t, seen[i-1].Less(m), "ties are ordered by id")
		}
	}

	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
		RoomID: room.ID, Cursor: &domain.Cursor{Timestamp: ts}, Limit: 10, Direction: domain.DirectionNewer,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Messages, "a timestamp-only cursor is strict")
}

func TestFetchPage_EmptyPageKeepsCursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	last := env.send(t, owner, room.ID, "only")

	cursor := last.Cursor()
	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
		RoomID: room.ID, Cursor: &cursor, Direction: domain.DirectionNewer,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, cursor, *page.NextCursor)

	env.send(t, owner, room.ID, "later")
	again, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{
		RoomID: room.ID, Cursor: page.NextCursor, Direction: domain.DirectionNewer,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, bodies(again.Messages))
}

func TestFetchPage_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	for i := 0; i < 5; i++ {
		env.send(t, owner, room.ID, fmt.Sprintf("m%d", i))
	}

	q := domain.PageQuery{RoomID: room.ID, Limit: 3}
	a, err := env.svc.Synchronizer.FetchPage(ctx, owner, q)
	require.NoError(t, err)
	b, err := env.svc.Synchronizer.FetchPage(ctx, owner, q)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFetchPage_DefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	for i := 0; i < 25; i++ {
		env.send(t, owner, room.ID, "m")
	}

	page, err := env.svc.Synchronizer.FetchPage(context.Background(), owner, domain.PageQuery{RoomID: room.ID})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 20)
}

func TestFetchPage_Access(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	outsider := env.user(t, "outsider")
	public := env.room(t, owner, false, false)
	private := env.room(t, owner, true, false)

	_, err := env.svc.Synchronizer.FetchPage(ctx, outsider, domain.PageQuery{RoomID: public.ID})
	assert.NoError(t, err, "public rooms are readable by any identity")

	_, err = env.svc.Synchronizer.FetchPage(ctx, outsider, domain.PageQuery{RoomID: private.ID})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = env.svc.Synchronizer.FetchPage(ctx, domain.Identity{}, domain.PageQuery{RoomID: public.ID})
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	_, err = env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: uuid.New()})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAppend_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)

	cases := map[string]AppendRequest{
		"empty":      {RoomID: room.ID, Body: ""},
		"whitespace": {RoomID: room.ID, Body: "   \n\t"},
		"too long":   {RoomID: room.ID, Body: strings.Repeat("é", 1001)},
		"system":     {RoomID: room.ID, Body: "hi", Type: domain.MessageTypeSystem},
		"unknown":    {RoomID: room.ID, Body: "hi", Type: "sticker"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Synchronizer.Append(ctx, owner, req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}

	msg, err := env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: strings.Repeat("é", 1000)})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeText, msg.Type)

	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1, "rejected appends store nothing")
}

func TestAppend_MembershipGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")
	room := env.room(t, owner, false, false)

	_, err := env.svc.Synchronizer.Append(ctx, bob, AppendRequest{RoomID: room.ID, Body: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "reading a public room does not grant writing")

	env.join(t, bob, room.ID)
	env.send(t, bob, room.ID, "hello")

	require.NoError(t, env.svc.Room.Leave(ctx, bob, room.ID))
	_, err = env.svc.Synchronizer.Append(ctx, bob, AppendRequest{RoomID: room.ID, Body: "still here?"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.ErrorIs(t, err, apperrors.ErrNotMember)
}

func TestAppend_UnknownRoomAndIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")

	_, err := env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: uuid.New(), Body: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.svc.Synchronizer.Append(ctx, domain.Identity{}, AppendRequest{RoomID: uuid.New(), Body: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestAppend_ConcurrentSendersBothLand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")
	room := env.room(t, owner, false, false)
	env.join(t, bob, room.ID)

	var g errgroup.Group
	for _, id := range []domain.Identity{owner, bob} {
		id := id
		g.Go(func() error {
			_, err := env.svc.Synchronizer.Append(ctx, id, AppendRequest{RoomID: room.ID, Body: "from " + id.DisplayName})
			return err
		})
	}
	require.NoError(t, g.Wait())

	page, err := env.svc.Synchronizer.FetchPage(ctx, owner, domain.PageQuery{RoomID: room.ID, Direction: domain.DirectionNewer})
	require.NoError(t, err)

	var sent []*domain.Message
	for _, m := range page.Messages {
		if m.Type == domain.MessageTypeText {
			sent = append(sent, m)
		}
	}
	require.Len(t, sent, 2)
	assert.ElementsMatch(t, []string{"from owner", "from bob"}, bodies(sent))
	assert.True(t, sent[0].CreatedAt.Before(sent[1].CreatedAt))
}

func TestAppend_GuestStoresNameWithoutAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	guest := env.guest(t, "Visitor")
	room := env.room(t, owner, false, true)
	env.join(t, guest, room.ID)

	name := "Ana"
	msg, err := env.svc.Synchronizer.Append(ctx, guest, AppendRequest{RoomID: room.ID, Body: "hola", GuestName: &name})
	require.NoError(t, err)
	assert.Nil(t, msg.UserID)
	require.NotNil(t, msg.GuestName)
	assert.Equal(t, "Ana", *msg.GuestName)

	stored, err := env.repos.Message.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, "Ana", *stored.GuestName)
	assert.Equal(t, "Ana", stored.AuthorName())

	plain, err := env.svc.Synchronizer.Append(ctx, guest, AppendRequest{RoomID: room.ID, Body: "again"})
	require.NoError(t, err)
	assert.Equal(t, "Visitor", *plain.GuestName, "falls back to the display name")
}

func TestAppend_RegisteredUserHasAuthorNotGuestName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)

	msg := env.send(t, owner, room.ID, "hi")
	require.NotNil(t, msg.UserID)
	assert.Equal(t, owner.ID, *msg.UserID)
	require.NotNil(t, msg.User)
	assert.Equal(t, "owner", msg.User.Name)
	assert.Nil(t, msg.GuestName)

	name := "Impostor"
	_, err := env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: "hi", GuestName: &name})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAppend_ReplyTo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	other := env.room(t, owner, false, false)
	parent := env.send(t, owner, room.ID, "question")
	elsewhere := env.send(t, owner, other.ID, "unrelated")

	reply, err := env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: "answer", ReplyTo: &parent.ID})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, *reply.ReplyTo)

	_, err = env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: "x", ReplyTo: &elsewhere.ID})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	missing := uuid.New()
	_, err = env.svc.Synchronizer.Append(ctx, owner, AppendRequest{RoomID: room.ID, Body: "x", ReplyTo: &missing})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAppend_PublishesHydratedMessage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	env.pub.reset()

	msg := env.send(t, owner, room.ID, "hi")

	require.Len(t, env.pub.events, 1)
	ev := env.pub.events[0]
	assert.Equal(t, domain.EventMessageSent, ev.Name)
	assert.Equal(t, room.ID, ev.RoomID)
	assert.Equal(t, msg, ev.Payload)
}

func TestAppendSystem_SkipsMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	room := env.room(t, owner, false, false)
	env.pub.reset()

	msg, err := env.svc.Synchronizer.AppendSystem(ctx, room.ID, "maintenance at noon")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeSystem, msg.Type)
	assert.Nil(t, msg.UserID)
	assert.Nil(t, msg.GuestName)
	assert.Equal(t, []string{domain.EventMessageSent}, env.pub.names())

	_, err = env.svc.Synchronizer.AppendSystem(ctx, room.ID, strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.svc.Synchronizer.AppendSystem(ctx, uuid.New(), "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClock_StrictlyIncreasingMicroseconds(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)
	clock := NewClock(func() time.Time { return frozen })

	a := clock.Next()
	b := clock.Next()
	assert.Equal(t, frozen.Truncate(time.Microsecond), a)
	assert.Equal(t, a.Add(time.Microsecond), b)
}
