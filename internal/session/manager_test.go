package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saltfish/allocdesk/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestManager_Lifecycle(t *testing.T) {
	rec := &recorder{}
	mgr := NewManager(Deps{Notifier: rec}, 0, zaptest.NewLogger(t))

	m, err := mgr.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.Count())

	got, err := mgr.Get(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)

	require.NoError(t, mgr.Close(m.ID()))
	assert.Equal(t, 0, mgr.Count())
	assert.Equal(t, 1, rec.count(EventSessionClosed))

	_, err = mgr.Get(m.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, mgr.Close(uuid.New()), domain.ErrNotFound)
}

func TestManager_Limit(t *testing.T) {
	mgr := NewManager(Deps{}, 2, zaptest.NewLogger(t))
	defer mgr.CloseAll()

	for i := 0; i < 2; i++ {
		_, err := mgr.Create(context.Background())
		require.NoError(t, err)
	}
	_, err := mgr.Create(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionLimit)
}

func TestManager_ReapIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	mgr := NewManager(Deps{Now: clock.Now}, 0, zaptest.NewLogger(t))
	defer mgr.CloseAll()

	idle, err := mgr.Create(context.Background())
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	active, err := mgr.Create(context.Background())
	require.NoError(t, err)
	clock.Advance(15 * time.Minute)
	require.NoError(t, active.SetAmount("10"))

	assert.Equal(t, 1, mgr.ReapIdle(30*time.Minute))
	_, err = mgr.Get(idle.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = mgr.Get(active.ID())
	assert.NoError(t, err)

	assert.Equal(t, 0, mgr.ReapIdle(30*time.Minute))
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var fn int
	multi := MultiNotifier{a, nil, b, NotifierFunc(func(uuid.UUID, string, interface{}) { fn++ })}
	multi.Notify(uuid.New(), EventSessionReset, nil)

	assert.Equal(t, 1, a.count(EventSessionReset))
	assert.Equal(t, 1, b.count(EventSessionReset))
	assert.Equal(t, 1, fn)
}
