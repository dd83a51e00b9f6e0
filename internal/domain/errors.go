package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput indicates document text that cannot be processed:
	// empty extraction output or non-monotonic page numbering. Caller error,
	// never retried.
	ErrMalformedInput = errors.New("malformed document input")

	// ErrEmbeddingUnavailable indicates the embedding service failed after
	// retry exhaustion.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the language model failed after retry
	// exhaustion.
	ErrLLMUnavailable = errors.New("language model unavailable")

	// ErrIndexConsistency indicates the dual-index write diverged and the
	// compensating delete also failed. Operator intervention required.
	ErrIndexConsistency = errors.New("lexical and vector indexes diverged")

	// ErrNotFound indicates an operation against an unknown document name.
	ErrNotFound = errors.New("document not found")
)

// Stage names one step of the query pipeline, attached to failures so
// callers can tell which stage broke without seeing internal state.
type Stage string

const (
	StageReceived   Stage = "received"
	StageRetrieving Stage = "retrieving"
	StageReranking  Stage = "reranking"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
	StageIngesting  Stage = "ingesting"
)

// PipelineError wraps a failure with the pipeline stage it occurred in.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// FailAt wraps err with the given stage.
func FailAt(stage Stage, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}
