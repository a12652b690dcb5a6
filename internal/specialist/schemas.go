package specialist

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danshapiro/hive/internal/prompt"
)

// Per-role output contracts. A response that parses as JSON but fails its
// role schema is ajv_failed, which is deterministic and never retried.
const craftSchemaJSON = `{
  "type": "object",
  "required": ["proposedChanges"],
  "properties": {
    "proposedChanges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["targetKey", "change", "confidence"],
        "properties": {
          "targetKey": {"type": "string", "minLength": 1},
          "change": {"type": "string", "minLength": 1},
          "rationale": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "risks": {"type": "array", "items": {"type": "string"}},
    "assumptions": {"type": "array", "items": {"type": "string"}}
  }
}`

const criticSchemaJSON = `{
  "type": "object",
  "required": ["pass"],
  "properties": {
    "pass": {"type": "boolean"},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "description"],
        "properties": {
          "severity": {"enum": ["high", "medium", "low"]},
          "description": {"type": "string", "minLength": 1},
          "fix": {"type": "string"}
        }
      }
    },
    "risks": {"type": "array", "items": {"type": "string"}},
    "assumptions": {"type": "array", "items": {"type": "string"}}
  }
}`

const plannerSchemaJSON = `{
  "type": "object",
  "required": ["objective", "stages"],
  "properties": {
    "objective": {"type": "string", "minLength": 1},
    "roles": {"type": "array", "items": {"type": "string"}},
    "stages": {"type": "array", "items": {"type": "string"}, "minItems": 1}
  }
}`

// genericSchemaJSON accepts any object; it backs generalist single-call
// dispatch, which has no fixed output shape beyond being a JSON object.
const genericSchemaJSON = `{"type": "object"}`

type roleSchemas struct {
	byRole map[string]*jsonschema.Schema
	craft  *jsonschema.Schema
}

func compileRoleSchemas() (*roleSchemas, error) {
	compile := func(name, src string) (*jsonschema.Schema, error) {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, err
		}
		return c.Compile(name)
	}
	craft, err := compile("craft.schema.json", craftSchemaJSON)
	if err != nil {
		return nil, err
	}
	critic, err := compile("critic.schema.json", criticSchemaJSON)
	if err != nil {
		return nil, err
	}
	planner, err := compile("planner.schema.json", plannerSchemaJSON)
	if err != nil {
		return nil, err
	}
	generic, err := compile("generic.schema.json", genericSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &roleSchemas{
		byRole: map[string]*jsonschema.Schema{
			prompt.RoleDesigner:   craft,
			prompt.RoleCritic:     critic,
			prompt.RolePlanner:    planner,
			prompt.RoleGeneralist: generic,
		},
		craft: craft,
	}, nil
}

// forRole returns the output contract for a role. Roles outside the fixed
// table are craft specialists, so they answer to the craft contract; only
// the generalist is free-form.
func (s *roleSchemas) forRole(role string) *jsonschema.Schema {
	if sch, ok := s.byRole[strings.ToLower(strings.TrimSpace(role))]; ok {
		return sch
	}
	return s.craft
}
