package routed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadQuotaTrackerEnforcesLimit(t *testing.T) {
	q := NewUploadQuotaTracker(100)

	assert.True(t, q.TryConsume(60))
	assert.True(t, q.TryConsume(40))
	assert.False(t, q.TryConsume(1))
	assert.Equal(t, int64(100), q.Used())
}

func TestUploadQuotaTrackerReleaseGivesBackBytes(t *testing.T) {
	q := NewUploadQuotaTracker(100)
	q.TryConsume(80)

	q.Release(30)
	assert.Equal(t, int64(50), q.Used())

	assert.True(t, q.TryConsume(50))
}

func TestUploadQuotaTrackerReleaseNeverGoesNegative(t *testing.T) {
	q := NewUploadQuotaTracker(100)
	q.Release(10)
	assert.Equal(t, int64(0), q.Used())
}

func TestUploadQuotaTrackerZeroLimitDisablesEnforcement(t *testing.T) {
	q := NewUploadQuotaTracker(0)
	assert.True(t, q.TryConsume(1<<30))
}

func TestUploadQuotaTrackerIsSafeForConcurrentUse(t *testing.T) {
	q := NewUploadQuotaTracker(1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.TryConsume(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), q.Used())
}
