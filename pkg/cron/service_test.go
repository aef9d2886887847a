package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, CronJob) error { return nil }

func TestAddJob_RejectsDuplicateIDs(t *testing.T) {
	cs := NewCronService(time.UTC)

	_, err := cs.AddJob("birthday_wishes", "birthday", Every(12*time.Hour), noop)
	require.NoError(t, err)

	_, err = cs.AddJob("birthday_wishes", "birthday", Every(12*time.Hour), noop)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobExists))
	assert.Len(t, cs.ListJobs(), 1)
}

func TestAddJob_ValidatesSchedule(t *testing.T) {
	cs := NewCronService(time.UTC)

	_, err := cs.AddJob("bad", "bad", CronSchedule{Kind: KindCron, Expr: "61 25 * * *"}, noop)
	assert.Error(t, err)

	zero := int64(0)
	_, err = cs.AddJob("zero", "zero", CronSchedule{Kind: KindEvery, EveryMS: &zero}, noop)
	assert.Error(t, err)

	_, err = cs.AddJob("nohandler", "x", Daily(8, 0), nil)
	assert.Error(t, err)

	assert.Empty(t, cs.ListJobs())
}

func TestDaily_ExpressionAndNextRun(t *testing.T) {
	s := Daily(8, 5)
	assert.Equal(t, "5 8 * * *", s.Expr)

	loc := time.FixedZone("UTC+8", 8*3600)
	ref := time.Date(2026, 3, 14, 9, 0, 0, 0, loc)
	next, err := NextRun(s, ref)
	require.NoError(t, err)
	assert.Equal(t, 15, next.Day())
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 5, next.Minute())
}

func TestRemoveByPrefix(t *testing.T) {
	cs := NewCronService(time.UTC)
	for _, id := range []string{"msg_0", "msg_2", "birthday_wishes"} {
		_, err := cs.AddJob(id, id, Daily(9, 0), noop)
		require.NoError(t, err)
	}

	removed := cs.RemoveByPrefix("msg_")
	assert.Equal(t, []string{"msg_0", "msg_2"}, removed)
	assert.True(t, cs.HasJob("birthday_wishes"))
	assert.False(t, cs.HasJob("msg_0"))
	assert.False(t, cs.RemoveJob("msg_0"))
	assert.True(t, cs.RemoveJob("birthday_wishes"))
}

func TestRunJob_RecordsState(t *testing.T) {
	cs := NewCronService(time.UTC)
	_, err := cs.AddJob("ok", "ok", Daily(9, 0), noop)
	require.NoError(t, err)
	_, err = cs.AddJob("fail", "fail", Daily(9, 0), func(context.Context, CronJob) error {
		return errors.New("push failed")
	})
	require.NoError(t, err)

	require.NoError(t, cs.RunJob(context.Background(), "ok"))
	require.Error(t, cs.RunJob(context.Background(), "fail"))
	assert.ErrorIs(t, cs.RunJob(context.Background(), "missing"), ErrJobNotFound)

	ok, _ := cs.GetJob("ok")
	assert.Equal(t, "ok", ok.State.LastStatus)
	assert.Equal(t, 1, ok.State.RunCount)

	failed, _ := cs.GetJob("fail")
	assert.Equal(t, "error", failed.State.LastStatus)
	assert.Equal(t, "push failed", failed.State.LastError)
}

func TestRunJob_RecoversPanics(t *testing.T) {
	cs := NewCronService(time.UTC)
	_, err := cs.AddJob("boom", "boom", Daily(9, 0), func(context.Context, CronJob) error {
		panic("boom")
	})
	require.NoError(t, err)

	err = cs.RunJob(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestStart_FiresIntervalJobs(t *testing.T) {
	cs := NewCronService(time.UTC)
	var fired atomic.Int32
	_, err := cs.AddJob("tick", "tick", Every(20*time.Millisecond), func(context.Context, CronJob) error {
		fired.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, cs.Start())
	require.NoError(t, cs.Start())
	assert.True(t, cs.IsRunning())

	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cs.Stop()
	cs.Wait()
	assert.False(t, cs.IsRunning())
	cs.Stop()
}

func TestStart_PicksUpJobsAddedWhileRunning(t *testing.T) {
	cs := NewCronService(time.UTC)
	require.NoError(t, cs.Start())
	defer cs.Stop()

	done := make(chan struct{}, 1)
	_, err := cs.AddJob("late", "late", Every(15*time.Millisecond), func(context.Context, CronJob) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job added after start never fired")
	}
}
