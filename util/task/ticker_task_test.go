package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	runs int64
}

func (r *countingRunner) Run() error {
	atomic.AddInt64(&r.runs, 1)
	return nil
}

func (r *countingRunner) count() int64 {
	return atomic.LoadInt64(&r.runs)
}

func TestStartWithoutInterval(t *testing.T) {
	runner := &countingRunner{}
	task := NewTickerTask(0, runner)
	task.Start()

	assert.Equal(t, int64(1), runner.count(), "a zero interval should run the task exactly once")
}

func TestStartSkippingInitialRun(t *testing.T) {
	runner := &countingRunner{}
	task := NewTickerTaskWithOptions(Options{
		Runner:         runner,
		SkipInitialRun: true,
	})
	task.Start()

	assert.Equal(t, int64(0), runner.count())
}

func TestRecurringRuns(t *testing.T) {
	runner := &countingRunner{}
	task := NewTickerTask(1*time.Millisecond, runner)
	task.Start()
	defer task.Stop()

	deadline := time.Now().Add(1 * time.Second)
	for runner.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(1 * time.Millisecond)
	}
	assert.True(t, runner.count() >= 3, "expected at least 3 runs, got %d", runner.count())
}

func TestStopClosesDone(t *testing.T) {
	runner := &countingRunner{}
	task := NewTickerTask(time.Hour, runner)
	task.Start()
	task.Stop()

	select {
	case <-task.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Done() channel not closed after Stop()")
	}
}
