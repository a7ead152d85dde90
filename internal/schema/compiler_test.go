package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Prepare(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"name"},
	}

	err := compiler.Prepare(ctx, schema)
	require.NoError(t, err)

	// Second prepare is served from the cache
	err = compiler.Prepare(ctx, schema)
	require.NoError(t, err)
}

func TestCompiler_Validate(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"name"},
	}

	err := compiler.Validate(ctx, schema, map[string]interface{}{"name": "test"})
	assert.NoError(t, err)

	// Invalid value (missing required field)
	err = compiler.Validate(ctx, schema, map[string]interface{}{})
	assert.Error(t, err)
}

func TestCompiler_PrepareAll(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	require.NoError(t, compiler.PrepareAll(context.Background()))
}

func TestValidatePayload_Submit(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	valid := `{"apiKey":"pk_1","visitorId":"v_1","totalTime":4000,
		"answers":[{"questionId":"intent","question":"Why?","answer":"pricing","timeToAnswer":1200}]}`
	assert.NoError(t, compiler.ValidatePayload(ctx, PayloadSubmit, []byte(valid)))

	noAnswers := `{"apiKey":"pk_1","visitorId":"v_1","answers":[]}`
	assert.Error(t, compiler.ValidatePayload(ctx, PayloadSubmit, []byte(noAnswers)))

	emptyAnswer := `{"apiKey":"pk_1","visitorId":"v_1","answers":[{"questionId":"intent","answer":""}]}`
	assert.Error(t, compiler.ValidatePayload(ctx, PayloadSubmit, []byte(emptyAnswer)))
}

func TestValidatePayload_Track(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	assert.NoError(t, compiler.ValidatePayload(ctx, PayloadTrack,
		[]byte(`{"apiKey":"pk_1","eventType":"widget_opened","metadata":{"device":"mobile"}}`)))
	assert.Error(t, compiler.ValidatePayload(ctx, PayloadTrack,
		[]byte(`{"apiKey":"pk_1","metadata":"nope"}`)))
}

func TestValidatePayload_Malformed(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	err := compiler.ValidatePayload(context.Background(), PayloadInit, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidatePayload_MissingVerifyDomain(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	err := compiler.ValidatePayload(context.Background(), PayloadVerify, []byte(`{"apiKey":"pk_1"}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}
