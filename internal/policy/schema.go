package policy

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchemaJSON is the registration-time contract for one policy object.
// Structural checks live here; cross-field rules (cap consistency, fallback
// rungs) live in validateSemantics.
const policySchemaJSON = `{
  "type": "object",
  "required": ["id", "version", "caps"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "caps": {
      "type": "object",
      "required": ["maxRounds", "costCapUsd", "maxTokensTotal"],
      "properties": {
        "maxRounds": {"type": "integer", "minimum": 0},
        "costCapUsd": {"type": "number", "minimum": 0},
        "maxTokensTotal": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "routing": {
      "type": "object",
      "properties": {
        "required": {"type": "array", "items": {"type": "string"}},
        "preferred": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": false
    },
    "swarm": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "costCapUsd": {"type": "number", "minimum": 0},
        "failureMode": {"enum": ["fail_fast", "continue_with_warnings"]},
        "roles": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["model", "timeoutMs"],
            "properties": {
              "model": {"type": "string", "minLength": 1},
              "transport": {"type": "string"},
              "capabilities": {"type": "array", "items": {"type": "string"}},
              "costCapUsd": {"type": "number", "minimum": 0},
              "timeoutMs": {"type": "integer", "minimum": 1},
              "fallbacks": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["model"],
                  "properties": {
                    "model": {"type": "string", "minLength": 1},
                    "timeoutMs": {"type": "integer", "minimum": 0}
                  },
                  "additionalProperties": false
                }
              }
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    },
    "single": {
      "type": "object",
      "required": ["model", "timeoutMs"],
      "properties": {
        "model": {"type": "string", "minLength": 1},
        "transport": {"type": "string"},
        "capabilities": {"type": "array", "items": {"type": "string"}},
        "costCapUsd": {"type": "number", "minimum": 0},
        "timeoutMs": {"type": "integer", "minimum": 1},
        "fallbacks": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["model"],
            "properties": {
              "model": {"type": "string", "minLength": 1},
              "timeoutMs": {"type": "integer", "minimum": 0}
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    },
    "defaults": {
      "type": "object",
      "properties": {
        "logLevel": {"type": "string"},
        "presentation": {"type": "string"}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

func compilePolicySchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("policy.schema.json", strings.NewReader(policySchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("policy.schema.json")
}
