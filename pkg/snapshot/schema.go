package snapshot

// EnvelopeSchema is the JSON schema every persisted run state must satisfy
const EnvelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["format", "version", "saved_at", "state"],
  "additionalProperties": false,
  "properties": {
    "format": {"type": "string", "const": "triad.runstate"},
    "version": {"type": "string", "minLength": 1},
    "saved_at": {"type": "string", "format": "date-time"},
    "state": {
      "type": "object",
      "required": ["run_id", "run_number", "roles", "status", "resumes", "messages", "started_at", "elapsed", "termination_satisfied", "selector"],
      "additionalProperties": false,
      "properties": {
        "run_id": {"type": "string", "minLength": 1},
        "run_number": {"type": "integer", "minimum": 1},
        "roles": {
          "type": ["array", "null"],
          "items": {"type": "string", "minLength": 1}
        },
        "status": {"type": "string", "enum": ["running", "completed", "cancelled", "failed"]},
        "outcome": {"type": "string", "enum": ["finished", "timed_out", "cancelled", "failed"]},
        "resumes": {"type": "integer", "minimum": 0},
        "messages": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["source", "content", "sequence_index", "timestamp"],
            "additionalProperties": false,
            "properties": {
              "source": {"type": "string", "minLength": 1},
              "content": {"type": "string"},
              "sequence_index": {"type": "integer", "minimum": 0},
              "timestamp": {"type": "string", "format": "date-time"}
            }
          }
        },
        "started_at": {"type": "string", "format": "date-time"},
        "elapsed": {"type": "integer", "minimum": 0},
        "ended_at": {"type": "string", "format": "date-time"},
        "termination_satisfied": {"type": "boolean"},
        "terminating_condition": {"type": "string", "enum": ["text_mention", "max_messages", "timeout", "source_match"]},
        "termination_reason": {"type": "string"},
        "selector": {"type": "string", "minLength": 1},
        "selector_state": {},
        "error": {"type": "string"}
      }
    }
  }
}`
