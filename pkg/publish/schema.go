package publish

// calculationSchemaJSON is the wire-format contract for authored calculation
// schemas, enforced before the decoded document is checked semantically.
const calculationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["condition_groups"],
  "properties": {
    "condition_groups": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/group"}
    },
    "output_status_on_pass": {"enum": ["PASS", "FAIL", "CONDITIONAL"]},
    "output_status_on_fail": {"enum": ["PASS", "FAIL", "CONDITIONAL"]}
  },
  "additionalProperties": false,
  "$defs": {
    "group": {
      "type": "object",
      "required": ["operator", "rules"],
      "properties": {
        "operator": {"enum": ["AND", "OR"]},
        "rules": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/rule"}}
      },
      "additionalProperties": false
    },
    "rule": {
      "type": "object",
      "required": ["rule_type"],
      "properties": {
        "rule_type": {
          "enum": ["AND_ALL", "OR_ANY", "PERCENTAGE_THRESHOLD", "COUNT_THRESHOLD", "MATCH_VALUE", "BBI_FUNCTIONALITY_CHECK"]
        }
      },
      "allOf": [
        {
          "if": {"properties": {"rule_type": {"const": "AND_ALL"}}},
          "then": {
            "required": ["conditions"],
            "properties": {"conditions": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/rule"}}}
          }
        },
        {
          "if": {"properties": {"rule_type": {"const": "OR_ANY"}}},
          "then": {
            "required": ["conditions"],
            "properties": {"conditions": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/rule"}}}
          }
        },
        {
          "if": {"properties": {"rule_type": {"const": "PERCENTAGE_THRESHOLD"}}},
          "then": {
            "required": ["field", "operator", "threshold"],
            "properties": {
              "field": {"type": "string", "minLength": 1},
              "operator": {"enum": [">=", ">", "<=", "<", "==", "!="]},
              "threshold": {"type": "number"}
            }
          }
        },
        {
          "if": {"properties": {"rule_type": {"const": "COUNT_THRESHOLD"}}},
          "then": {
            "required": ["field", "operator", "threshold"],
            "properties": {
              "field": {"type": "string", "minLength": 1},
              "operator": {"enum": [">=", ">", "<=", "<", "==", "!="]},
              "threshold": {"type": "number"}
            }
          }
        },
        {
          "if": {"properties": {"rule_type": {"const": "MATCH_VALUE"}}},
          "then": {
            "required": ["field", "operator", "value"],
            "properties": {
              "field": {"type": "string", "minLength": 1},
              "operator": {"enum": ["==", "!=", "contains", "not_contains"]}
            }
          }
        },
        {
          "if": {"properties": {"rule_type": {"const": "BBI_FUNCTIONALITY_CHECK"}}},
          "then": {
            "required": ["entity_id", "expected_status"],
            "properties": {
              "entity_id": {"type": "string", "minLength": 1},
              "expected_status": {"type": "string", "minLength": 1}
            }
          }
        }
      ]
    }
  }
}`
