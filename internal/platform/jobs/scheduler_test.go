package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (r *fakeRecorder) RecordJobRun(job string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[string][]error{}
	}
	r.runs[job] = append(r.runs[job], err)
}

func (r *fakeRecorder) count(job string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs[job])
}

func TestScheduler_RunsJobs(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewScheduler(zerolog.Nop(), rec)

	var calls int32
	require.NoError(t, s.Every("tick", time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	require.NoError(t, s.Every("broken", time.Second, func(ctx context.Context) error {
		return errors.New("boom")
	}))

	s.Start()
	defer s.Stop()

	// gocron runs each job immediately on start
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1 && rec.count("broken") >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_RejectsBadInterval(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), nil)
	assert.Error(t, s.Every("never", 0, func(context.Context) error { return nil }))
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	require.NoError(t, s.Every("long", time.Minute, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	go s.Stop()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not cancelled by Stop")
	}
}
