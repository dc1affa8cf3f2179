package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

func newSession(id string) *model.StreamSession {
	return &model.StreamSession{
		ID:        id,
		State:     model.SessionCreated,
		Handles:   map[string]model.TranscodeHandle{},
		CreatedAt: time.Unix(100, 0),
	}
}

func TestPutGetDelete(t *testing.T) {
	r := New()
	require.NoError(t, r.Put(newSession("a")))
	assert.ErrorIs(t, r.Put(newSession("a")), ErrExists)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, 1, r.Len())

	last, ok := r.Delete("a")
	require.True(t, ok)
	assert.Equal(t, "a", last.ID)

	_, ok = r.Get("a")
	assert.False(t, ok)
	_, ok = r.Delete("a")
	assert.False(t, ok)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Put(newSession("a")))

	got, _ := r.Get("a")
	got.Handles["x"] = model.TranscodeHandle{ID: "x"}
	got.SeekPosition = 42

	again, _ := r.Get("a")
	assert.Empty(t, again.Handles)
	assert.Zero(t, again.SeekPosition)
}

func TestUpdate(t *testing.T) {
	r := New()
	require.NoError(t, r.Put(newSession("a")))

	s, err := r.Update("a", func(s *model.StreamSession) error {
		s.State = model.SessionActive
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, s.State)

	boom := errors.New("boom")
	_, err = r.Update("a", func(s *model.StreamSession) error {
		s.State = model.SessionDestroyed
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _ := r.Get("a")
	assert.Equal(t, model.SessionActive, got.State, "aborted update is not published")

	_, err = r.Update("missing", func(*model.StreamSession) error { return nil })
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	r := New()
	require.NoError(t, r.Put(newSession("a")))

	const workers, iterations = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				assert.NoError(t, r.Acquire("a"))
			}
		}()
	}
	wg.Wait()

	got, _ := r.Get("a")
	assert.Equal(t, workers*iterations, got.InFlight)
}

func TestAcquireRelease(t *testing.T) {
	now := time.Unix(1000, 0)
	r := New().WithClock(func() time.Time { return now })
	require.NoError(t, r.Put(newSession("a")))

	require.NoError(t, r.Acquire("a"))
	got, _ := r.Get("a")
	assert.Equal(t, 1, got.InFlight)
	assert.True(t, got.LastAccessed.Equal(now))

	r.Release("a")
	r.Release("a")
	got, _ = r.Get("a")
	assert.Equal(t, 0, got.InFlight, "never negative")

	assert.ErrorIs(t, r.Acquire("missing"), model.ErrSessionNotFound)
	r.Release("missing")
}

func TestTouch(t *testing.T) {
	now := time.Unix(2000, 0)
	r := New().WithClock(func() time.Time { return now })
	require.NoError(t, r.Put(newSession("a")))

	s, err := r.Touch("a")
	require.NoError(t, err)
	assert.True(t, s.LastAccessed.Equal(now))
}

func TestSnapshotOrderedByCreation(t *testing.T) {
	r := New()
	for i := 3; i >= 1; i-- {
		s := newSession(fmt.Sprintf("s%d", i))
		s.CreatedAt = time.Unix(int64(i), 0)
		require.NoError(t, r.Put(s))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})

	snap[0].State = model.SessionDestroyed
	got, _ := r.Get("s1")
	assert.Equal(t, model.SessionCreated, got.State, "snapshot entries are copies")
}
