package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpiringMapSetGet(t *testing.T) {
	m := NewExpiringMap[string, int](time.Minute, time.Hour)
	defer m.Close()

	m.Set("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestExpiringMapExpiresByTimestamp(t *testing.T) {
	m := NewExpiringMap[string, int](time.Minute, time.Hour)
	defer m.Close()

	m.SetWithExpiration("a", 1, time.Now().Add(-time.Second))
	_, ok := m.Get("a")
	require.False(t, ok, "entry with a past expiration must read as absent")
}

func TestExpiringMapDeleteAndSnapshot(t *testing.T) {
	m := NewExpiringMap[string, int](time.Minute, time.Hour)
	defer m.Close()

	m.Set("a", 1)
	m.Set("b", 2)
	m.Delete("a")

	snap := m.Snapshot()
	require.Equal(t, map[string]int{"b": 2}, snap)
}

func TestExpiringMapCleanupSweep(t *testing.T) {
	m := NewExpiringMap[string, int](10*time.Millisecond, 5*time.Millisecond)
	defer m.Close()

	m.Set("a", 1)
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, stored := m.entries["a"]
		return !stored
	}, 500*time.Millisecond, 10*time.Millisecond)
}
