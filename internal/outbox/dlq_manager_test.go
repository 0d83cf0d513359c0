package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	manager := NewDLQManager(nil, 5, time.Minute)

	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 2*time.Minute, manager.backoffDelay(2))
	require.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	require.Equal(t, time.Hour, manager.backoffDelay(10), "delay must cap at one hour")
}

func TestNewDLQManagerAppliesDefaults(t *testing.T) {
	manager := NewDLQManager(nil, 0, 0)

	require.Equal(t, 5, manager.maxRetries)
	require.Equal(t, time.Minute, manager.baseDelay)
}
