package admission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_AdmittedRunsOperation(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 5, Period: 1, TimeUnit: "second",
	}))

	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return args[0].(int) * 2, nil
	})

	got, err := h.Invoke(context.Background(), &RequestContext{
		Operation: "double",
		Args:      []interface{}{21},
		Now:       testBase,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestHandler_OperationErrorPropagatesWithoutRefund(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 2, Period: 1, TimeUnit: "second",
	}))

	boom := errors.New("downstream failed")
	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, boom
	})

	rc := &RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()

	_, err := h.Invoke(ctx, rc)
	assert.ErrorIs(t, err, boom)
	_, err = h.Invoke(ctx, rc)
	assert.ErrorIs(t, err, boom)

	// both failing invocations consumed quota; the third is denied
	_, err = h.Invoke(ctx, rc)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
}

func TestHandler_DeniedCarriesDecision(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 1, Period: 1, TimeUnit: "second",
		Message: "come back later",
	}))

	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "ok", nil
	})

	rc := &RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()

	_, err := h.Invoke(ctx, rc)
	require.NoError(t, err)

	_, err = h.Invoke(ctx, rc)
	denied, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "p", denied.Policy)
	assert.NotNil(t, denied.Decision)
	assert.Equal(t, int64(0), denied.Decision.Remaining)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, 429, denied.HTTPStatus())
}

func TestHandler_FallbackOnDenial(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RegisterFallback("cached", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "cached result", nil
	})
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 1, Period: 1, TimeUnit: "second",
		FallbackOperation: "cached",
	}))

	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "live result", nil
	})

	rc := &RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()

	got, err := h.Invoke(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "live result", got)

	got, err = h.Invoke(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "cached result", got)
}

func TestHandler_UnknownFallbackErrors(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 1, Period: 1, TimeUnit: "second",
		FallbackOperation: "never_registered",
	}))

	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, nil
	})

	rc := &RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()

	_, err := h.Invoke(ctx, rc)
	require.NoError(t, err)
	_, err = h.Invoke(ctx, rc)
	assert.ErrorIs(t, err, ErrUnknownFallback)
}

func TestHandler_IgnoreOnLimitSwallowsDenial(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.RegisterPolicy("p", Policy{
		Limit: 1, Period: 1, TimeUnit: "second",
		IgnoreOnLimit: true,
	}))

	h := e.Guard("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "ran", nil
	})

	rc := &RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()

	got, err := h.Invoke(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "ran", got)

	got, err = h.Invoke(ctx, rc)
	require.NoError(t, err)
	assert.Nil(t, got)
}
