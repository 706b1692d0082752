package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetLoggerCachesPerModule(t *testing.T) {
	m := NewManager(DefaultManagerConfig())
	defer m.CloseAll()

	l1 := m.GetLogger("admission")
	l2 := m.GetLogger("admission")
	l3 := m.GetLogger("stats")

	require.NotNil(t, l1)
	assert.Same(t, l1, l2, "same module should return the cached logger")
	assert.NotSame(t, l1, l3)
}

func TestManager_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Level = "not-a-level"

	m := NewManager(cfg)
	defer m.CloseAll()

	// Must not panic, logger should still be usable.
	l := m.GetLogger("admission")
	l.Info("hello")
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	require.NotNil(t, l)
	l.Debug("discarded")
	l.Error("discarded")

	withFields := l.With()
	require.NotNil(t, withFields)
}
