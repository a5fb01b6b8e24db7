package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

func TestSessionLifecycle(t *testing.T) {
	bus := NewEventBus()
	events := bus.Subscribe()
	s := NewSessionService(bus)
	defer s.Close()

	sess := s.Create("demo")
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "demo", sess.Project)
	require.NotNil(t, sess.Renderer)
	require.Equal(t, 1, s.Count())
	require.Equal(t, Event{Resource: "maps", Action: "created", ID: sess.ID}, <-events)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Same(t, sess, got)

	updates, _ := sess.Renderer.Subscribe()

	require.NoError(t, s.Delete(sess.ID))
	require.Equal(t, "deleted", (<-events).Action)
	require.Zero(t, s.Count())

	// The renderer was closed with the session.
	_, open := <-updates
	require.False(t, open)

	_, err = s.Get(sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(sess.ID), ErrNotFound)
}

func TestSessionGetDoesNotRevive(t *testing.T) {
	s := NewSessionService(nil)
	defer s.Close()

	for i := 0; i < 50; i++ {
		sess := s.Create("demo")

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					_, _ = s.Get(sess.ID)
				}
			}()
		}
		require.NoError(t, s.Delete(sess.ID))
		wg.Wait()

		_, err := s.Get(sess.ID)
		require.ErrorIs(t, err, ErrNotFound)
		require.Zero(t, s.Count())
	}
}

func TestSessionExpires(t *testing.T) {
	s := NewSessionService(nil, WithSessionTTL(50*time.Millisecond))
	defer s.Close()

	sess := s.Create("demo")
	updates, _ := sess.Renderer.Subscribe()

	// The janitor evicts the idle session and closes its renderer.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-updates:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.Get(sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, s.Count())
}

func TestSessionFactory(t *testing.T) {
	calls := 0
	s := NewSessionService(nil, WithRendererFactory(func() *maputil.Renderer {
		calls++
		return maputil.New()
	}))
	defer s.Close()

	s.Create("a")
	s.Create("b")
	require.Equal(t, 2, calls)
	require.Equal(t, 2, s.Count())

	s.Close()
	require.Zero(t, s.Count())
}
