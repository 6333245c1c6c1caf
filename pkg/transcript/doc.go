// Package transcript projects a run into a human-auditable record.
//
// A Record is derived from an orchestrator.RunState (or from the event
// stream through a Recorder) and is never authoritative: it can be
// regenerated from the state at any time and rendering the same record twice
// yields identical bytes. Alongside the markdown record, Log keeps an
// append-only JSONL file of every event as it is produced.
package transcript
