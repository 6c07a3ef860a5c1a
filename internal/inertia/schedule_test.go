package inertia

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualSchedulerOrder(t *testing.T) {
	sched := NewManualScheduler()

	var order []string
	sched.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })
	sched.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	sched.AfterFunc(20*time.Millisecond, func() { order = append(order, "c") })

	assert.Equal(t, 3, sched.Pending())
	assert.Equal(t, 1, sched.Advance(15*time.Millisecond))
	assert.Equal(t, 15*time.Millisecond, sched.Now())
	assert.Equal(t, 2, sched.Advance(5*time.Millisecond))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestManualSchedulerReschedulesDuringAdvance(t *testing.T) {
	sched := NewManualScheduler()

	count := 0
	var step func()
	step = func() {
		count++
		if count < 5 {
			sched.AfterFunc(10*time.Millisecond, step)
		}
	}
	sched.AfterFunc(10*time.Millisecond, step)

	assert.Equal(t, 3, sched.Advance(30*time.Millisecond))
	assert.Equal(t, 2, sched.Advance(time.Second))
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, sched.Pending())
}

func TestManualSchedulerStop(t *testing.T) {
	sched := NewManualScheduler()

	fired := false
	timer := sched.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.False(t, sched.RunNext())
	assert.False(t, fired)
}

func TestRealScheduler(t *testing.T) {
	done := make(chan struct{})
	RealScheduler{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
