package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theo-thinker/music-server-admission/logger"
)

func TestManager_ConnectAndPing(t *testing.T) {
	mr := miniredis.RunT(t)

	m, err := NewManager(map[string]Config{
		"default": {Addr: mr.Addr()},
	}, logger.NewNop())
	require.NoError(t, err)
	defer m.Close()

	require.NotNil(t, m.Client("default"))
	assert.Nil(t, m.Client("missing"))
	assert.Equal(t, []string{"default"}, m.InstanceNames())
	assert.NoError(t, m.Ping(context.Background()))
}

func TestManager_InvalidConfig(t *testing.T) {
	_, err := NewManager(map[string]Config{
		"bad": {Addr: ""},
	}, logger.NewNop())
	assert.Error(t, err)
}

func TestManager_UnreachableInstance(t *testing.T) {
	_, err := NewManager(map[string]Config{
		"down": {Addr: "127.0.0.1:1"},
	}, logger.NewNop())
	assert.Error(t, err)
}
