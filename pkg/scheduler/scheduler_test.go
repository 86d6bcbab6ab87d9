package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarted(t *testing.T) *Scheduler {
	t.Helper()

	s, err := NewScheduler()
	require.NoError(t, err)

	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	return s
}

func TestAddCronDuplicateName(t *testing.T) {
	s := newStarted(t)

	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddCron("a", "0 * * * *", noop, context.Background()))
	assert.Error(t, s.AddCron("a", "0 * * * *", noop, context.Background()))
}

func TestAddCronInvalidExpression(t *testing.T) {
	s := newStarted(t)

	err := s.AddCron("bad", "not a cron", func(context.Context) error { return nil }, context.Background())
	assert.Error(t, err)
}

func TestRunNowRecordsSuccess(t *testing.T) {
	s := newStarted(t)

	var runs atomic.Int32

	require.NoError(t, s.AddCron("ok", "0 0 1 1 *", func(context.Context) error {
		runs.Add(1)
		return nil
	}, context.Background()))

	require.NoError(t, s.RunNow("ok"))

	require.Eventually(t, func() bool {
		info, err := s.GetJobInfoByName("ok")
		return err == nil && info.Runs == 1
	}, 2*time.Second, 10*time.Millisecond)

	info, err := s.GetJobInfoByName("ok")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, info.Status)
	assert.False(t, info.LastSuccess.IsZero())
	assert.Equal(t, int32(1), runs.Load())
}

func TestRunNowRecordsErrorAndPanic(t *testing.T) {
	s := newStarted(t)

	require.NoError(t, s.AddCron("fails", "0 0 1 1 *", func(context.Context) error {
		return errors.New("disk gone")
	}, context.Background()))
	require.NoError(t, s.AddCron("panics", "0 0 1 1 *", func(context.Context) error {
		panic("boom")
	}, context.Background()))

	require.NoError(t, s.RunNow("fails"))
	require.NoError(t, s.RunNow("panics"))

	for name, want := range map[string]string{"fails": "disk gone", "panics": "panic in job: boom"} {
		require.Eventually(t, func() bool {
			info, err := s.GetJobInfoByName(name)
			return err == nil && info.Status == StatusError && info.Error == want
		}, 2*time.Second, 10*time.Millisecond, name)
	}
}

func TestRemoveJobByName(t *testing.T) {
	s := newStarted(t)

	require.NoError(t, s.AddCron("gone", "0 * * * *", func(context.Context) error { return nil }, context.Background()))
	require.NoError(t, s.RemoveJobByName("gone"))

	_, err := s.GetJobInfoByName("gone")
	assert.Error(t, err)
	assert.Error(t, s.RunNow("gone"))
	assert.Empty(t, s.GetJobInfos())
}
