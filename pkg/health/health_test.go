package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusStaysHealthyBelowRetryThreshold(t *testing.T) {
	status := NewStatus()
	config := Config{Retries: 3}

	status.Update(Result{Healthy: false, CheckedAt: time.Now()}, config)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.ConsecutiveFailures)

	status.Update(Result{Healthy: false, CheckedAt: time.Now()}, config)
	assert.True(t, status.Healthy)
	assert.Equal(t, 2, status.ConsecutiveFailures)
}

func TestStatusFlipsUnhealthyAtRetryThreshold(t *testing.T) {
	status := NewStatus()
	config := Config{Retries: 3}

	for i := 0; i < 3; i++ {
		status.Update(Result{Healthy: false, CheckedAt: time.Now()}, config)
	}
	assert.False(t, status.Healthy)
	assert.Equal(t, 3, status.ConsecutiveFailures)
}

func TestStatusRecoversImmediatelyOnSuccess(t *testing.T) {
	status := NewStatus()
	config := Config{Retries: 2}

	status.Update(Result{Healthy: false, CheckedAt: time.Now()}, config)
	status.Update(Result{Healthy: false, CheckedAt: time.Now()}, config)
	assert.False(t, status.Healthy)

	status.Update(Result{Healthy: true, CheckedAt: time.Now()}, config)
	assert.True(t, status.Healthy)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Equal(t, 1, status.ConsecutiveSuccesses)
}

func TestInStartPeriod(t *testing.T) {
	status := NewStatus()

	assert.False(t, status.InStartPeriod(Config{StartPeriod: 0}))
	assert.True(t, status.InStartPeriod(Config{StartPeriod: time.Hour}))

	status.StartedAt = time.Now().Add(-2 * time.Hour)
	assert.False(t, status.InStartPeriod(Config{StartPeriod: time.Hour}))
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 30*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, 3, config.Retries)
}
