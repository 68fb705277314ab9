package evalexpr

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netauto/jobengine/internal/domain"
)

func newEvaluator() *ExprEvaluator {
	return New(zerolog.Nop())
}

func TestEvalBool_SimplePayloadExpression(t *testing.T) {
	e := newEvaluator()
	ectx := domain.EvaluationContext{Payload: domain.Payload{"ready": true}}
	got, err := e.EvalBool(context.Background(), `payload.ready == true`, ectx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalBool_DeviceAttributes(t *testing.T) {
	e := newEvaluator()
	device := &domain.Device{ID: uuid.New(), Name: "router1", Vendor: "cisco"}
	ectx := domain.EvaluationContext{Payload: domain.Payload{}, Device: device}
	got, err := e.EvalBool(context.Background(), `device.vendor == "cisco"`, ectx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalBool_UndefinedReferenceIsGracefulFalse(t *testing.T) {
	e := newEvaluator()
	ectx := domain.EvaluationContext{Payload: domain.Payload{}}
	got, err := e.EvalBool(context.Background(), `payload.not_yet_populated.success == true`, ectx)
	require.NoError(t, err, "a reference to not-yet-populated payload data must not error")
	assert.False(t, got)
}

func TestEvalBool_NonBoolResultErrors(t *testing.T) {
	e := newEvaluator()
	ectx := domain.EvaluationContext{Payload: domain.Payload{"x": 1}}
	_, err := e.EvalBool(context.Background(), `payload.x`, ectx)
	assert.Error(t, err)
}

func TestEvalList_StringSlice(t *testing.T) {
	e := newEvaluator()
	ectx := domain.EvaluationContext{Payload: domain.Payload{
		"names": []any{"router1", "router2"},
	}}
	got, err := e.EvalList(context.Background(), `payload.names`, ectx)
	require.NoError(t, err)
	assert.Equal(t, []string{"router1", "router2"}, got)
}

func TestGetProgram_CachesCompiledExpression(t *testing.T) {
	e := newEvaluator()
	ectx := domain.EvaluationContext{Payload: domain.Payload{"x": true}}
	expr := `payload.x == true`

	_, err := e.EvalBool(context.Background(), expr, ectx)
	require.NoError(t, err)
	e.mu.Lock()
	_, cached := e.compiled[expr]
	e.mu.Unlock()
	assert.True(t, cached, "expression should be cached after first compile")
}
