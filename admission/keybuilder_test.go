package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBuilder_Deterministic(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	p := &Policy{Key: "play:#{user_id}", Dimension: string(DimensionOperation)}
	rc := &RequestContext{
		Operation: "song.play",
		Extra:     map[string]interface{}{"user_id": "u1"},
	}

	k1, err := kb.Build(p, rc)
	require.NoError(t, err)
	k2, err := kb.Build(p, rc)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, "adm:operation:play:u1", k1)
}

func TestKeyBuilder_DimensionsNeverCollide(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	rc := &RequestContext{
		Operation: "song.play",
		CallerIP:  "10.0.0.1",
		Principal: "u1",
	}

	seen := map[string]bool{}
	for _, dim := range []Dimension{
		DimensionGlobal, DimensionIP, DimensionPrincipal,
		DimensionOperation, DimensionComposite,
	} {
		p := &Policy{Key: "song.play", Dimension: string(dim)}
		key, err := kb.Build(p, rc)
		require.NoError(t, err)
		assert.False(t, seen[key], "key %q collides across dimensions", key)
		seen[key] = true
	}
}

func TestKeyBuilder_EmptyKeyUsesOperation(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	p := &Policy{Dimension: string(DimensionOperation)}

	key, err := kb.Build(p, &RequestContext{Operation: "user.login"})
	require.NoError(t, err)
	assert.Equal(t, "adm:operation:user.login", key)
}

func TestKeyBuilder_BadTemplateFallsBackToLiteral(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	p := &Policy{Key: "k:#{nope}", Dimension: string(DimensionOperation)}

	key, err := kb.Build(p, &RequestContext{Operation: "op"})
	require.NoError(t, err)
	assert.Equal(t, "adm:operation:k:#{nope}", key)
}

func TestKeyBuilder_ParameterDimensionUsesFirstStringArg(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	p := &Policy{Key: "song.play", Dimension: string(DimensionParameter)}
	rc := &RequestContext{Operation: "song.play", Args: []interface{}{"song-9"}}

	key, err := kb.Build(p, rc)
	require.NoError(t, err)
	assert.Equal(t, "adm:parameter:song.play:song-9", key)
}

func TestKeyBuilder_CustomGenerator(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	kb.RegisterGenerator("by_region", func(p *Policy, rc *RequestContext) (string, error) {
		return "region:" + rc.Extra["region"].(string), nil
	})

	p := &Policy{Dimension: string(DimensionCustom), KeyGenerator: "by_region"}
	rc := &RequestContext{Extra: map[string]interface{}{"region": "eu"}}

	key, err := kb.Build(p, rc)
	require.NoError(t, err)
	assert.Equal(t, "adm:custom:region:eu", key)

	p.KeyGenerator = "unregistered"
	_, err = kb.Build(p, rc)
	assert.ErrorIs(t, err, ErrUnknownKeyGenerator)
}

func TestKeyBuilder_MissingAxisValueBecomesUnknown(t *testing.T) {
	kb := NewKeyBuilder(nil, nil)
	p := &Policy{Key: "op", Dimension: string(DimensionIP)}

	key, err := kb.Build(p, &RequestContext{Operation: "op"})
	require.NoError(t, err)
	assert.Equal(t, "adm:ip:op:unknown", key)
}
