package envelope

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	messageSchema = mustResolve(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"type"},
		Properties: map[string]*jsonschema.Schema{
			"type":      {Type: "string"},
			"timestamp": {Type: "string"},
		},
	})

	chunkSchema = mustResolve(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"type", "chunkId", "chunkIndex", "totalChunks", "chunk"},
		Properties: map[string]*jsonschema.Schema{
			"type":        {Type: "string"},
			"chunkId":     {Type: "string", MinLength: intPtr(1)},
			"chunkIndex":  {Type: "integer", Minimum: floatPtr(0)},
			"totalChunks": {Type: "integer", Minimum: floatPtr(1)},
			"chunk":       {Type: "string"},
			"timestamp":   {Type: "string"},
		},
	})
)

func mustResolve(schema *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("envelope: resolve schema: %v", err))
	}

	return resolved
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
