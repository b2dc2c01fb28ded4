package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/bioprotocol-io/bioprotocol/internal/keymap"
)

// Validator checks normalized rows and converts them to ArticleProtocol records.
type Validator struct {
	fields *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{fields: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks that fields has exactly NormalizedKeys, converts each value to its record type
// and applies the record's field constraints.
//
// Missing and unexpected keys are reported together:
//
//	result is missing keys: is_protocol, uri; result has unexpected extra data: foo
//
// Every failure is a *PipelineError of kind KindValidation carrying the normalized fields.
func (v *Validator) Validate(fields NormalizedFields) (*ArticleProtocol, error) {
	if err := checkKeySet(fields); err != nil {
		return nil, validationError(fields, err)
	}

	record, err := toRecord(fields)
	if err != nil {
		return nil, validationError(fields, err)
	}

	if err := v.fields.Struct(record); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return nil, validationError(fields, fmt.Errorf("%w: %s", ErrInvalidValue, describeFieldErrors(fieldErrs)))
		}

		return nil, validationError(fields, err)
	}

	return record, nil
}

func checkKeySet(fields NormalizedFields) error {
	missing, extra := keymap.KeyDiff(keymap.SortedKeys(fields), NormalizedKeys)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "result is missing keys: "+strings.Join(missing, ", "))
	}

	if len(extra) > 0 {
		problems = append(problems, "result has unexpected extra data: "+strings.Join(extra, ", "))
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrKeySetMismatch, strings.Join(problems, "; "))
}

func toRecord(fields NormalizedFields) (*ArticleProtocol, error) {
	sequencingNumber, ok := fields[FieldSequencingNumber].(string)
	if !ok {
		return nil, invalidType(FieldSequencingNumber, "a string", fields[FieldSequencingNumber])
	}

	title, ok := fields[FieldTitle].(string)
	if !ok {
		return nil, invalidType(FieldTitle, "a string", fields[FieldTitle])
	}

	isProtocol, ok := asBool(fields[FieldIsProtocol])
	if !ok {
		return nil, invalidType(FieldIsProtocol, "a boolean", fields[FieldIsProtocol])
	}

	status, ok := asStatus(fields[FieldStatus])
	if !ok {
		return nil, invalidType(FieldStatus, "an integer code", fields[FieldStatus])
	}

	var uri *string

	switch value := fields[FieldURI].(type) {
	case nil:
	case string:
		uri = &value
	default:
		return nil, invalidType(FieldURI, "a string or null", value)
	}

	msid, ok := asInt64(fields[FieldMsid])
	if !ok {
		return nil, invalidType(FieldMsid, "an integer", fields[FieldMsid])
	}

	if err := checkStorable(FieldSequencingNumber, sequencingNumber); err != nil {
		return nil, err
	}

	if err := checkStorable(FieldTitle, title); err != nil {
		return nil, err
	}

	if uri != nil {
		if err := checkStorable(FieldURI, *uri); err != nil {
			return nil, err
		}
	}

	return &ArticleProtocol{
		Msid:                     msid,
		ProtocolSequencingNumber: sequencingNumber,
		ProtocolTitle:            title,
		IsProtocol:               isProtocol,
		ProtocolStatus:           status,
		URI:                      uri,
	}, nil
}

// checkStorable rejects text a PostgreSQL text column cannot hold: NUL characters and invalid UTF-8.
func checkStorable(field, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidValue, field)
	}

	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: %s contains a NUL character", ErrInvalidValue, field)
	}

	return nil
}

func invalidType(field, want string, got any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidValue, field, want, got)
}

// asBool accepts booleans and the integers 0 and 1.
func asBool(value any) (bool, bool) {
	if b, ok := value.(bool); ok {
		return b, true
	}

	n, ok := asInt64(value)
	if !ok || (n != 0 && n != 1) {
		return false, false
	}

	return n == 1, true
}

// asStatus accepts integral numbers and booleans. The partner has sent both over time.
func asStatus(value any) (int, bool) {
	if b, ok := value.(bool); ok {
		if b {
			return 1, true
		}

		return 0, true
	}

	n, ok := asInt64(value)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}

	return int(n), true
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}

		f, err := n.Float64()
		if err != nil {
			return 0, false
		}

		return floatToInt64(f)
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return floatToInt64(n)
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}

	return int64(f), true
}

func describeFieldErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))

	for _, fe := range errs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}

	return strings.Join(parts, ", ")
}
