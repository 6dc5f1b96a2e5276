package scanning

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReporterDeliversInOrder(t *testing.T) {
	reporter := NewProgressReporter()

	for i := 0; i < 100; i++ {
		reporter.Publish(ProgressEvent{Kind: EventProgress, ScannedCount: uint64(i)})
	}
	reporter.Close()

	var got []uint64
	for event := range reporter.Events() {
		got = append(got, event.ScannedCount)
	}

	require.Len(t, got, 100)
	for i, count := range got {
		assert.Equal(t, uint64(i), count)
	}
}

func TestProgressReporterPublishNeverBlocks(t *testing.T) {
	reporter := NewProgressReporter()
	defer reporter.Close()

	// Publish far more events than the delivery buffer holds without any
	// consumer attached; all calls must return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			reporter.Publish(ProgressEvent{Kind: EventProgress, ScannedCount: uint64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked with no consumer")
	}
}

func TestProgressReporterCloseDrainsQueue(t *testing.T) {
	reporter := NewProgressReporter()

	reporter.Publish(ProgressEvent{Kind: EventPortOpen, IP: "10.0.0.1", Port: 80})
	reporter.Publish(ProgressEvent{Kind: EventComplete})
	reporter.Close()

	var kinds []EventKind
	for event := range reporter.Events() {
		kinds = append(kinds, event.Kind)
	}
	assert.Equal(t, []EventKind{EventPortOpen, EventComplete}, kinds)
}

func TestProgressReporterDropsAfterClose(t *testing.T) {
	reporter := NewProgressReporter()
	reporter.Close()
	reporter.Publish(ProgressEvent{Kind: EventPortOpen})

	_, open := <-reporter.Events()
	assert.False(t, open, "channel should be closed with no events delivered")
}

func TestProgressReporterUnconsumedLeavesNoGoroutine(t *testing.T) {
	before := runtime.NumGoroutine()

	// Scans nobody subscribes to are the daemon's normal case; their
	// reporters must not hold a delivery goroutine hostage.
	for i := 0; i < 20; i++ {
		reporter := NewProgressReporter()
		for j := 0; j < 200; j++ {
			reporter.Publish(ProgressEvent{Kind: EventProgress, ScannedCount: uint64(j)})
		}
		reporter.Close()
	}

	time.Sleep(50 * time.Millisecond)
	after := runtime.NumGoroutine()
	assert.LessOrEqual(t, after, before+2,
		"unconsumed reporters leaked goroutines: %d -> %d", before, after)
}

func TestProgressReporterLateConsumerGetsBacklog(t *testing.T) {
	reporter := NewProgressReporter()
	for i := 0; i < progressOutBuffer*3; i++ {
		reporter.Publish(ProgressEvent{Kind: EventProgress, ScannedCount: uint64(i)})
	}
	reporter.Close()

	// First Events call comes after Close; the full backlog, larger than
	// the delivery buffer, must still arrive in order.
	var got int
	for event := range reporter.Events() {
		assert.Equal(t, uint64(got), event.ScannedCount)
		got++
	}
	assert.Equal(t, progressOutBuffer*3, got)
}

func TestProgressReporterCloseIdempotent(t *testing.T) {
	reporter := NewProgressReporter()
	reporter.Close()
	reporter.Close()

	_, open := <-reporter.Events()
	assert.False(t, open)
}
