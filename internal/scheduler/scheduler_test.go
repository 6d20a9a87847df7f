package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestNewTimezone(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.NotNil(t, s.timezone)

	s, err = New("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", s.timezone.String())

	_, err = New("Mars/Olympus")
	assert.Error(t, err)
}

func TestAddSyncJob(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)

	require.NoError(t, s.AddSyncJob("0 18 * * 1-5", noop))
	assert.Error(t, s.AddSyncJob("0 19 * * *", noop), "duplicate name")

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "sync", jobs[0].Name)

	s.RemoveJob("sync")
	assert.Empty(t, s.ListJobs())
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)
	assert.Error(t, s.AddJob("bad", "every day at noon", noop))
}

func TestRunNow(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)

	var hadDeadline bool
	require.NoError(t, s.RunNow("sync", func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}))
	assert.True(t, hadDeadline)

	boom := errors.New("boom")
	assert.ErrorIs(t, s.RunNow("sync", func(context.Context) error { return boom }), boom)
}

func TestStartStop(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)
	require.NoError(t, s.AddSyncJob("@every 1h", noop))

	s.Start()
	<-s.Stop().Done()
}
