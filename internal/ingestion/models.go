// Package ingestion turns partner-submitted protocol rows into stored article protocol records.
//
// Each row goes through normalize → validate → upsert on its own: a malformed row ends up in the
// batch's failed list without affecting the others.
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxTitleLength is the maximum protocol title length, in characters. Longer titles are truncated.
const MaxTitleLength = 500

// Partner wire keys (TitleCase).
const (
	KeySequencingNumber = "ProtocolSequencingNumber"
	KeyTitle            = "ProtocolTitle"
	KeyIsProtocol       = "IsProtocol"
	KeyStatus           = "ProtocolStatus"
	KeyURI              = "URI"
	KeyMsid             = "msid"
)

// Normalized field names (snake_case).
const (
	FieldSequencingNumber = "protocol_sequencing_number"
	FieldTitle            = "protocol_title"
	FieldIsProtocol       = "is_protocol"
	FieldStatus           = "protocol_status"
	FieldURI              = "uri"
	FieldMsid             = "msid"
)

// NormalizedKeys is the exact key set a normalized row must have.
var NormalizedKeys = []string{
	FieldSequencingNumber,
	FieldTitle,
	FieldIsProtocol,
	FieldStatus,
	FieldURI,
	FieldMsid,
}

// Sentinel errors.
var (
	// ErrProcessing matches every PipelineError of kind KindProcessing.
	ErrProcessing = errors.New("processing error")

	// ErrValidation matches every PipelineError of kind KindValidation.
	ErrValidation = errors.New("validation error")

	// ErrKeySetMismatch is returned when a normalized row does not have exactly NormalizedKeys.
	ErrKeySetMismatch = errors.New("key set mismatch")

	// ErrInvalidValue is returned when a field value has the wrong type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNoStore is returned when a pipeline is created without a store.
	ErrNoStore = errors.New("ingestion store cannot be nil")
)

type (
	// ArticleProtocol is a stored protocol row, keyed by (Msid, ProtocolSequencingNumber).
	ArticleProtocol struct {
		Msid                     int64   `validate:"gt=0"`
		ProtocolSequencingNumber string  `validate:"required,max=25"`
		ProtocolTitle            string  `validate:"max=500"`
		IsProtocol               bool
		ProtocolStatus           int
		URI                      *string `validate:"omitempty,url"`
		CreatedAt                time.Time
		UpdatedAt                time.Time
	}

	// RawProtocolItem is one row of a partner batch as received: TitleCase keys with JSON values.
	// Numbers are expected as json.Number (decoded with UseNumber) but plain Go numbers are accepted.
	RawProtocolItem map[string]any

	// NormalizedFields is a row after key renaming and snake-casing, before its key set is checked.
	NormalizedFields map[string]any

	// Batch is one partner submission for an article.
	Batch struct {
		Msid  int64
		Items []RawProtocolItem
	}

	// BatchResult accounts for every item of a Batch in exactly one of Successful or Failed,
	// each in input order.
	BatchResult struct {
		Msid       int64
		Successful []*ArticleProtocol
		Failed     []*PipelineError
	}

	// ErrorKind tags a PipelineError.
	ErrorKind int

	// PipelineError is a per-item failure. It never aborts the rest of a batch.
	PipelineError struct {
		// Kind tells whether normalization or validation failed.
		Kind ErrorKind

		// Data is a snapshot of the offending item at the failing step.
		Data map[string]any

		// Cause is the underlying error.
		Cause error
	}
)

const (
	// KindProcessing marks a failure while renaming or normalizing, usually a missing field.
	KindProcessing ErrorKind = iota + 1

	// KindValidation marks a normalized item with the wrong key set or invalid values.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindProcessing:
		return "processing"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error renders the kind, the cause and the data snapshot. Snapshot keys are sorted.
func (e *PipelineError) Error() string {
	snapshot, err := json.Marshal(e.Data)
	if err != nil {
		snapshot = []byte(fmt.Sprintf("%v", e.Data))
	}

	return fmt.Sprintf("%s error: %v on data: %s", e.Kind, e.Cause, snapshot)
}

// Unwrap returns the cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches ErrProcessing or ErrValidation according to the error kind.
func (e *PipelineError) Is(target error) bool {
	switch e.Kind {
	case KindProcessing:
		return target == ErrProcessing
	case KindValidation:
		return target == ErrValidation
	default:
		return false
	}
}

// Total returns the number of items accounted for.
func (r *BatchResult) Total() int {
	return len(r.Successful) + len(r.Failed)
}

func (p *ArticleProtocol) String() string {
	return fmt.Sprintf("%d#%s", p.Msid, p.ProtocolSequencingNumber)
}

func processingError(data map[string]any, cause error) *PipelineError {
	return &PipelineError{Kind: KindProcessing, Data: snapshot(data), Cause: cause}
}

func validationError(data map[string]any, cause error) *PipelineError {
	return &PipelineError{Kind: KindValidation, Data: snapshot(data), Cause: cause}
}

func snapshot(data map[string]any) map[string]any {
	cpy := make(map[string]any, len(data))
	for k, v := range data {
		cpy[k] = v
	}

	return cpy
}
