package ingestion

import (
	"fmt"
	"strings"

	"github.com/bioprotocol-io/bioprotocol/internal/keymap"
)

// Normalize renames and snake-cases the keys of a raw row, blanks empty URIs and truncates the title.
//
// Steps, in order:
//  1. URI → Uri and msid → Msid, so every key converts cleanly to snake_case
//  2. every key TitleCase → snake_case
//  3. a blank or whitespace-only uri becomes null
//  4. protocol_title is truncated to MaxTitleLength characters
//
// Any failure is a *PipelineError of kind KindProcessing carrying the raw row. The input is not modified.
func Normalize(item RawProtocolItem) (NormalizedFields, error) {
	renamed, err := keymap.RenameKey(item, KeyURI, "Uri")
	if err != nil {
		return nil, processingError(item, err)
	}

	renamed, err = keymap.RenameKey(renamed, KeyMsid, "Msid")
	if err != nil {
		return nil, processingError(item, err)
	}

	fields, err := keymap.SnakeCaseKeys(renamed)
	if err != nil {
		return nil, processingError(item, err)
	}

	if uri, ok := fields[FieldURI].(string); ok && strings.TrimSpace(uri) == "" {
		fields[FieldURI] = nil
	}

	title, present := fields[FieldTitle]
	if !present {
		return nil, processingError(item, fmt.Errorf("%w: %q", keymap.ErrKeyNotFound, FieldTitle))
	}

	titleStr, ok := title.(string)
	if !ok {
		return nil, processingError(item, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidValue, FieldTitle, title))
	}

	fields[FieldTitle] = truncate(titleStr, MaxTitleLength)

	return fields, nil
}

func truncate(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}

		count++
	}

	return s
}
