package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLess_TieBreaksOnID(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	low := &Message{ID: uuid.MustParse("00000000-0000-7000-8000-000000000001"), CreatedAt: ts}
	high := &Message{ID: uuid.MustParse("00000000-0000-7000-8000-000000000002"), CreatedAt: ts}
	later := &Message{ID: uuid.MustParse("00000000-0000-7000-8000-000000000000"), CreatedAt: ts.Add(time.Microsecond)}

	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
	assert.True(t, high.Less(later))
}

func TestCursorCompare(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &Message{ID: uuid.MustParse("00000000-0000-7000-8000-000000000001"), CreatedAt: ts}
	b := &Message{ID: uuid.MustParse("00000000-0000-7000-8000-000000000002"), CreatedAt: ts}

	keyset := a.Cursor()
	assert.Equal(t, 0, keyset.Compare(a))
	assert.Equal(t, 1, keyset.Compare(b))

	timestampOnly := Cursor{Timestamp: ts}
	assert.Equal(t, 0, timestampOnly.Compare(a))
	assert.Equal(t, 0, timestampOnly.Compare(b))
	assert.Equal(t, -1, timestampOnly.Compare(&Message{CreatedAt: ts.Add(-time.Second)}))
}

func TestMessageValidate(t *testing.T) {
	uid := uuid.New()
	name := "Ana"

	assert.NoError(t, (&Message{Type: MessageTypeText, GuestName: &name}).Validate())
	assert.NoError(t, (&Message{Type: MessageTypeText, UserID: &uid}).Validate())
	assert.ErrorIs(t, (&Message{Type: MessageTypeText, UserID: &uid, GuestName: &name}).Validate(), ErrGuestWithAuthor)
	assert.ErrorIs(t, (&Message{Type: MessageTypeSystem, UserID: &uid}).Validate(), ErrSystemWithAuthor)
}

func TestPageEnvelope_EmptyPageKeepsCursor(t *testing.T) {
	cursor := &Cursor{Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ID: uuid.New()}
	page := &Page{NextCursor: cursor}

	env := page.Envelope()
	assert.NotNil(t, env.Messages)
	require.NotNil(t, env.LastTimestamp)
	require.NotNil(t, env.LastID)

	back := env.Page()
	require.NotNil(t, back.NextCursor)
	assert.True(t, cursor.Timestamp.Equal(back.NextCursor.Timestamp))
	assert.Equal(t, cursor.ID, back.NextCursor.ID)
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("")
	assert.True(t, ok)
	assert.Equal(t, DirectionOlder, d)

	d, ok = ParseDirection("newer")
	assert.True(t, ok)
	assert.Equal(t, DirectionNewer, d)

	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}
