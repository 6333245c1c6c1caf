package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/triad/pkg/orchestrator"
)

const (
	// Format identifies run state envelopes
	Format = "triad.runstate"
	// Version is the envelope version written by this build
	Version = "1.0.0"
	// Compatibility is the range of envelope versions this build restores
	Compatibility = "^1.0.0"
)

var (
	// ErrMalformedState is the orchestrator sentinel, re-exported for callers of Restore
	ErrMalformedState = orchestrator.ErrMalformedState
	// ErrVersionMismatch means the envelope was written by an incompatible build
	ErrVersionMismatch = errors.New("incompatible run state version")
)

// StateError is returned when a persisted state is rejected.
type StateError struct {
	Kind error // ErrMalformedState or ErrVersionMismatch
	Err  error
}

func (e *StateError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StateError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(format string, args ...interface{}) error {
	return &StateError{Kind: ErrMalformedState, Err: fmt.Errorf(format, args...)}
}

// Envelope is the serialized form of a run state
type Envelope struct {
	Format  string                `json:"format"`
	Version string                `json:"version"`
	SavedAt time.Time             `json:"saved_at"`
	State   orchestrator.RunState `json:"state"`
}

type header struct {
	Format  string `json:"format"`
	Version string `json:"version"`
}

// Codec converts run states to and from their versioned envelope
type Codec struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
	constraint   *semver.Constraints
	clock        func() time.Time
}

// NewCodec creates a codec accepting envelopes within Compatibility
func NewCodec(logger zerolog.Logger) *Codec {
	constraint, err := semver.NewConstraint(Compatibility)
	if err != nil {
		panic(fmt.Sprintf("invalid compatibility constraint %q: %v", Compatibility, err))
	}
	return &Codec{
		logger:       logger.With().Str("component", "snapshot").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(EnvelopeSchema),
		constraint:   constraint,
		clock:        time.Now,
	}
}

// Snapshot serializes a state. Only valid states are written.
func (c *Codec) Snapshot(state orchestrator.RunState) ([]byte, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to snapshot invalid state: %w", err)
	}

	env := Envelope{
		Format:  Format,
		Version: Version,
		SavedAt: c.clock().UTC(),
		State:   state,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run state: %w", err)
	}
	return append(data, '\n'), nil
}

// Restore parses and validates a serialized state. Version problems are
// reported as ErrVersionMismatch, everything else as ErrMalformedState.
func (c *Codec) Restore(data []byte) (orchestrator.RunState, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return orchestrator.RunState{}, malformed("invalid JSON: %v", err)
	}
	if h.Format != Format {
		return orchestrator.RunState{}, malformed("unexpected format %q", h.Format)
	}
	if err := c.checkVersion(h.Version); err != nil {
		return orchestrator.RunState{}, err
	}

	if err := c.validateSchema(data); err != nil {
		return orchestrator.RunState{}, &StateError{Kind: ErrMalformedState, Err: err}
	}

	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return orchestrator.RunState{}, malformed("decode envelope: %v", err)
	}

	state := env.State
	if len(state.SelectorState) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, state.SelectorState); err != nil {
			return orchestrator.RunState{}, malformed("selector state: %v", err)
		}
		state.SelectorState = json.RawMessage(buf.Bytes())
	}

	if err := state.Validate(); err != nil {
		return orchestrator.RunState{}, malformed("%v", err)
	}

	c.logger.Debug().
		Str("run_id", state.RunID).
		Int64("run_number", state.RunNumber).
		Str("version", h.Version).
		Int("messages", len(state.Messages)).
		Msg("Restored run state")

	return state, nil
}

func (c *Codec) checkVersion(version string) error {
	if version == "" {
		return malformed("missing version")
	}
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return malformed("invalid version %q: %v", version, err)
	}
	if !c.constraint.Check(v) {
		return &StateError{
			Kind: ErrVersionMismatch,
			Err:  fmt.Errorf("version %s does not satisfy %s", version, Compatibility),
		}
	}
	return nil
}

func (c *Codec) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(c.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}
