package reporter

import (
	"context"
	"testing"
	"time"

	"github.com/mahir/coursebot/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil, "@every 1m", zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_DefaultsSchedule(t *testing.T) {
	store := session.NewStore(session.DefaultOptions())

	r, err := New(store, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "@every 1m", r.schedule)
}

func TestStart_InvalidSchedule(t *testing.T) {
	store := session.NewStore(session.DefaultOptions())

	r, err := New(store, "not a schedule", zerolog.Nop())
	require.NoError(t, err)

	err = r.Start()
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	store := session.NewStore(session.DefaultOptions())

	r, err := New(store, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, r.Start())
	r.Stop()
}

func TestReport(t *testing.T) {
	store := session.NewStore(session.Options{MaxMessages: 10, MaxSessions: 10, TTL: time.Hour})
	_, err := store.GetOrCreate(context.Background(), "sess-1")
	require.NoError(t, err)
	_, err = store.GetOrCreate(context.Background(), "sess-2")
	require.NoError(t, err)

	r, err := New(store, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	// Direct invocation; must not panic and reads the live count
	r.report()
	assert.Equal(t, 2, store.Len())
}
