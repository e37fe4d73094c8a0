package client

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"room_chat/internal/domain"
)

func TestSession_ExpireFiresOnce(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	s := NewSession(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	assert.False(t, s.Expire(), "a logged out session cannot expire")
	_, ok := s.AccessToken()
	assert.False(t, ok)

	s.Authenticate(&AuthResponse{User: domain.User{ID: uuid.New(), Name: "ana"}, AccessToken: "a", RefreshToken: "r"})
	token, ok := s.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "a", token)
	id, ok := s.Identity()
	assert.True(t, ok)
	assert.Equal(t, "ana", id.DisplayName)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Expire()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, SessionExpired, s.State())
	_, ok = s.AccessToken()
	assert.False(t, ok)

	s.Authenticate(&AuthResponse{AccessToken: "b"})
	s.Logout()
	assert.Equal(t, SessionLoggedOut, s.State())
	assert.False(t, s.Expire())
	assert.Equal(t, 1, calls)
}
