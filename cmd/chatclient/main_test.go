package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"room_chat/internal/client"
	"room_chat/internal/domain"
)

func TestPrinter_PrintsEachMessageOnce(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out, seen: make(map[uuid.UUID]struct{})}
	guest := "Visitor"
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	first := &domain.Message{ID: uuid.New(), Body: "hi", Type: domain.MessageTypeText, GuestName: &guest, CreatedAt: at}
	notice := &domain.Message{ID: uuid.New(), Body: "Ana joined the room", Type: domain.MessageTypeSystem, CreatedAt: at.Add(time.Second)}

	p.MessagesChanged(uuid.Nil, []*domain.Message{first})
	p.MessagesChanged(uuid.Nil, []*domain.Message{first, notice})

	assert.Equal(t, "[10:00:00] Visitor: hi\n[10:00:01] * Ana joined the room\n", out.String())
}

func TestPrinter_ConnectionChangesOnlyOnTransition(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out, seen: make(map[uuid.UUID]struct{})}

	p.ConnectionChanged(uuid.Nil, client.Connected, nil)
	p.ConnectionChanged(uuid.Nil, client.Connected, nil)
	p.ConnectionChanged(uuid.Nil, client.Disconnected, errors.New("dial failed"))

	assert.Equal(t, "* connected\n* disconnected: dial failed\n", out.String())
}

func TestPrinter_LeavesHistoryToRedraw(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out, seen: make(map[uuid.UUID]struct{})}
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	name := "Ana"
	older := &domain.Message{ID: uuid.New(), Body: "old", Type: domain.MessageTypeText, GuestName: &name, CreatedAt: at}
	newer := &domain.Message{ID: uuid.New(), Body: "new", Type: domain.MessageTypeText, GuestName: &name, CreatedAt: at.Add(time.Minute)}

	p.MessagesChanged(uuid.Nil, []*domain.Message{newer})
	p.MessagesChanged(uuid.Nil, []*domain.Message{older, newer})
	assert.Equal(t, "[10:01:00] Ana: new\n", out.String())

	out.Reset()
	p.reprint([]*domain.Message{older, newer})
	assert.Equal(t, "* ---\n[10:00:00] Ana: old\n[10:01:00] Ana: new\n", out.String())
}
