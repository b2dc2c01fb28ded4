package ingestion

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioprotocol-io/bioprotocol/internal/keymap"
)

func rawItem() RawProtocolItem {
	return RawProtocolItem{
		KeySequencingNumber: "s4-3",
		KeyTitle:            "Cell culture and transfection",
		KeyIsProtocol:       true,
		KeyStatus:           json.Number("0"),
		KeyURI:              "https://en.bio-protocol.org/rap.aspx?eid=24419&item=s4-3",
		KeyMsid:             int64(12345),
	}
}

func TestNormalize(t *testing.T) {
	fields, err := Normalize(rawItem())
	require.NoError(t, err)

	assert.Equal(t, NormalizedFields{
		FieldSequencingNumber: "s4-3",
		FieldTitle:            "Cell culture and transfection",
		FieldIsProtocol:       true,
		FieldStatus:           json.Number("0"),
		FieldURI:              "https://en.bio-protocol.org/rap.aspx?eid=24419&item=s4-3",
		FieldMsid:             int64(12345),
	}, fields)
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	item := rawItem()

	_, err := Normalize(item)
	require.NoError(t, err)

	assert.Equal(t, rawItem(), item)
}

func TestNormalize_BlankURIBecomesNull(t *testing.T) {
	tests := []struct {
		name string
		uri  any
		want any
	}{
		{name: "empty", uri: "", want: nil},
		{name: "whitespace", uri: "   ", want: nil},
		{name: "tabs and newlines", uri: "\t\n", want: nil},
		{name: "null", uri: nil, want: nil},
		{name: "well formed", uri: "https://example.org/p/1", want: "https://example.org/p/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := rawItem()
			item[KeyURI] = tt.uri

			fields, err := Normalize(item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fields[FieldURI])
		})
	}
}

func TestNormalize_TruncatesTitle(t *testing.T) {
	item := rawItem()
	item[KeyTitle] = strings.Repeat("a", 600)

	fields, err := Normalize(item)
	require.NoError(t, err)
	assert.Len(t, fields[FieldTitle], MaxTitleLength)

	// Truncation counts characters, not bytes.
	item[KeyTitle] = strings.Repeat("é", 501)

	fields, err = Normalize(item)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 500), fields[FieldTitle])
}

func TestNormalize_ProcessingErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(RawProtocolItem)
		wantErr error
	}{
		{name: "missing URI", mutate: func(i RawProtocolItem) { delete(i, KeyURI) }, wantErr: keymap.ErrKeyNotFound},
		{name: "missing msid", mutate: func(i RawProtocolItem) { delete(i, KeyMsid) }, wantErr: keymap.ErrKeyNotFound},
		{name: "missing title", mutate: func(i RawProtocolItem) { delete(i, KeyTitle) }, wantErr: keymap.ErrKeyNotFound},
		{name: "non-string title", mutate: func(i RawProtocolItem) { i[KeyTitle] = json.Number("3") }, wantErr: ErrInvalidValue},
		{
			name:    "colliding keys",
			mutate:  func(i RawProtocolItem) { i["protocol_title"] = "dupe" },
			wantErr: keymap.ErrKeyCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := rawItem()
			tt.mutate(item)

			_, err := Normalize(item)
			require.Error(t, err)

			var pipelineErr *PipelineError
			require.True(t, errors.As(err, &pipelineErr))
			assert.Equal(t, KindProcessing, pipelineErr.Kind)
			assert.True(t, errors.Is(err, ErrProcessing))
			assert.False(t, errors.Is(err, ErrValidation))
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, map[string]any(item), pipelineErr.Data, "snapshot is the raw item")
		})
	}
}

func TestPipelineError_Message(t *testing.T) {
	item := rawItem()
	delete(item, KeyURI)

	_, err := Normalize(item)
	require.Error(t, err)

	assert.Equal(t,
		`processing error: key not found: "URI" on data: {"IsProtocol":true,"ProtocolSequencingNumber":"s4-3",`+
			`"ProtocolStatus":0,"ProtocolTitle":"Cell culture and transfection","msid":12345}`,
		err.Error(),
	)
}
