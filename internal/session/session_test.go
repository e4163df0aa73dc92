package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

func TestGetOrCreateSignalsCreation(t *testing.T) {
	s := NewStore()

	p, created := s.GetOrCreate("u1")
	assert.True(t, created)
	assert.Equal(t, models.StageAwaitingGender, p.Stage)
	assert.NotEmpty(t, s.SessionID("u1"))

	_, created = s.GetOrCreate("u1")
	assert.False(t, created)
	assert.Equal(t, 1, s.Len())
}

func TestUpdateAppliesAndDiscards(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("u1")

	require.NoError(t, s.Update("u1", func(p *models.Profile) error {
		p.Gender = models.GenderMale
		p.Stage = p.Stage.Next()
		return nil
	}))

	errBoom := errors.New("boom")
	err := s.Update("u1", func(p *models.Profile) error {
		p.Age = 99
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	p, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, models.GenderMale, p.Gender)
	assert.Equal(t, 0, p.Age, "failed update must not leak")
	assert.Equal(t, models.StageAwaitingAge, p.Stage)
}

func TestUpdateUnknownSession(t *testing.T) {
	s := NewStore()
	err := s.Update("ghost", func(p *models.Profile) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestIsCompleteAndDestroy(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("u1")
	assert.False(t, s.IsComplete("u1"))

	require.NoError(t, s.Update("u1", func(p *models.Profile) error {
		p.Stage = models.StageComplete
		return nil
	}))
	assert.True(t, s.IsComplete("u1"))

	s.Destroy("u1")
	s.Destroy("u1")
	_, ok := s.Get("u1")
	assert.False(t, ok)
	assert.False(t, s.IsComplete("u1"))
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewStore(WithTTL(time.Hour), WithClock(clock))

	s.GetOrCreate("old")
	now = now.Add(45 * time.Minute)
	s.GetOrCreate("fresh")

	assert.Equal(t, 0, s.Sweep(now.Add(10*time.Minute)))
	assert.Equal(t, 1, s.Sweep(now.Add(30*time.Minute)))

	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("fresh")
	assert.True(t, ok)
}

func TestSweepDisabledWithZeroTTL(t *testing.T) {
	s := NewStore(WithTTL(0))
	s.GetOrCreate("u1")
	assert.Equal(t, 0, s.Sweep(time.Now().Add(1000*time.Hour)))
	assert.Equal(t, 1, s.Len())
}

func TestLockSerializesSameUser(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("u1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("u1")
			defer unlock()
			p, _ := s.Get("u1")
			age := p.Age + 1
			_ = s.Update("u1", func(p *models.Profile) error {
				p.Age = age
				return nil
			})
		}()
	}
	wg.Wait()

	p, _ := s.Get("u1")
	assert.Equal(t, 50, p.Age, "read-modify-write under Lock must not lose updates")

	s.lockMu.Lock()
	assert.Empty(t, s.locks, "idle user locks should be released")
	s.lockMu.Unlock()
}

func TestUsersAreIndependent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i)
			unlock := s.Lock(id)
			defer unlock()
			s.GetOrCreate(id)
			_ = s.Update(id, func(p *models.Profile) error {
				p.Age = i + 1
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		p, ok := s.Get(fmt.Sprintf("user-%d", i))
		require.True(t, ok)
		assert.Equal(t, i+1, p.Age)
	}
}
