package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload names a widget endpoint request body
type Payload string

const (
	PayloadInit   Payload = "init"
	PayloadSubmit Payload = "submit"
	PayloadTrack  Payload = "track"
	PayloadVerify Payload = "verify"
)

// ErrMalformed is returned when a body is not JSON at all
var ErrMalformed = errors.New("malformed JSON body")

var apiKey = map[string]interface{}{"type": "string", "minLength": 1}

var payloadSchemas = map[Payload]map[string]interface{}{
	PayloadInit: {
		"type":     "object",
		"required": []string{"apiKey", "visitorId"},
		"properties": map[string]interface{}{
			"apiKey":    apiKey,
			"visitorId": map[string]interface{}{"type": "string", "minLength": 1},
			"pageUrl":   map[string]interface{}{"type": "string"},
		},
	},
	PayloadSubmit: {
		"type":     "object",
		"required": []string{"apiKey", "visitorId", "answers"},
		"properties": map[string]interface{}{
			"apiKey":    apiKey,
			"visitorId": map[string]interface{}{"type": "string", "minLength": 1},
			"sessionId": map[string]interface{}{"type": "string"},
			"totalTime": map[string]interface{}{"type": "number", "minimum": 0},
			"answers": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"questionId", "answer"},
					"properties": map[string]interface{}{
						"questionId":   map[string]interface{}{"type": "string", "minLength": 1},
						"question":     map[string]interface{}{"type": "string"},
						"answer":       map[string]interface{}{"type": "string", "minLength": 1},
						"timeToAnswer": map[string]interface{}{"type": "number", "minimum": 0},
					},
				},
			},
			"device": map[string]interface{}{"type": "object"},
		},
	},
	PayloadTrack: {
		"type":     "object",
		"required": []string{"apiKey", "eventType"},
		"properties": map[string]interface{}{
			"apiKey":    apiKey,
			"eventType": map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 64},
			"metadata":  map[string]interface{}{"type": "object"},
		},
	},
	PayloadVerify: {
		"type":     "object",
		"required": []string{"apiKey", "domain"},
		"properties": map[string]interface{}{
			"apiKey": apiKey,
			"domain": map[string]interface{}{"type": "string", "minLength": 1},
		},
	},
}

// ValidatePayload checks a raw request body against the schema for p
func (c *Compiler) ValidatePayload(ctx context.Context, p Payload, body []byte) error {
	schema, ok := payloadSchemas[p]
	if !ok {
		return fmt.Errorf("unknown payload %q", p)
	}
	var value interface{}
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c.Validate(ctx, schema, value)
}

// PrepareAll compiles every payload schema up front
func (c *Compiler) PrepareAll(ctx context.Context) error {
	for p, schema := range payloadSchemas {
		if err := c.Prepare(ctx, schema); err != nil {
			return fmt.Errorf("payload %s: %w", p, err)
		}
	}
	return nil
}
